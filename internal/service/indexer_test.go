package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenomics-indexer/internal/alerting"
	"tokenomics-indexer/internal/fallback"
	"tokenomics-indexer/internal/storage"
	"tokenomics-indexer/internal/validation"
)

var runAt = time.Date(2026, 10, 14, 0, 5, 0, 0, time.UTC)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	rec   storage.DailyRecord
	err   error
	panic string
}

func (f *fakeFetcher) FetchAll(context.Context) (storage.DailyRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panic != "" {
		panic(f.panic)
	}
	return f.rec, f.err
}

type recordingNotifier struct {
	notes []alerting.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return nil
}

type failingSaves struct {
	*storage.RecordStore
}

func (failingSaves) Save(context.Context, storage.DailyRecord, bool) (string, bool, error) {
	return "", false, errors.New("bucket unavailable")
}

// racedSaves reports that another writer stored the day first.
type racedSaves struct {
	*storage.RecordStore
}

func (racedSaves) Save(context.Context, storage.DailyRecord, bool) (string, bool, error) {
	return "https://blobs.example/tokenomics-2026-10-14.json", false, nil
}

type heldLock struct {
	*storage.RecordStore
}

func (heldLock) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	return nil, false, nil
}

func freshRecord(t *testing.T, price float64) storage.DailyRecord {
	t.Helper()
	rec := storage.DailyRecord{
		Date:                "2026-10-14",
		BurnedSupply:        "50000000",
		TreasurySupply:      "1000",
		PriceUSD:            price,
		OnChainLiquidityUSD: 12000,
		UpdatedAt:           runAt,
	}
	require.NoError(t, rec.Recompute())
	return rec
}

type harness struct {
	indexer  *Indexer
	records  *storage.RecordStore
	fetcher  *fakeFetcher
	notifier *recordingNotifier
	stored   []storage.DailyRecord
}

func newHarness(t *testing.T, wrap func(*storage.RecordStore) RecordStore, lockKey int64) *harness {
	t.Helper()
	records := storage.NewRecordStore(storage.NewMemoryBlobStore("https://blobs.example"), "tokenomics", 0)
	h := &harness{records: records, fetcher: &fakeFetcher{}, notifier: &recordingNotifier{}}

	var store RecordStore = records
	if wrap != nil {
		store = wrap(records)
	}
	h.indexer = New(Options{LockKey: lockKey, Now: func() time.Time { return runAt }}, Deps{
		Fetcher:   h.fetcher,
		Validator: validation.New(validation.DefaultThresholds()),
		Fallback:  fallback.New(records, zerolog.Nop()),
		Records:   store,
		Notifier:  h.notifier,
		OnStored:  func(rec storage.DailyRecord) { h.stored = append(h.stored, rec) },
	}, zerolog.Nop())
	return h
}

func (h *harness) seedPrevious(t *testing.T, price float64) {
	t.Helper()
	prev := freshRecord(t, price)
	prev.Date = "2026-10-13"
	prev.BurnedSupply = "40000000"
	require.NoError(t, prev.Recompute())
	_, _, err := h.records.Save(context.Background(), prev, true)
	require.NoError(t, err)
}

func TestIndexStoresFreshRecord(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.fetcher.rec = freshRecord(t, 0.15)

	out := h.indexer.Index(context.Background(), IndexOptions{})
	require.True(t, out.Success, out.Message)
	assert.Equal(t, StatusStored, out.Status)
	assert.Equal(t, "2026-10-14", out.Date)
	assert.Equal(t, "https://blobs.example/tokenomics-2026-10-14.json", out.URL)
	require.NotNil(t, out.Data)
	assert.Equal(t, 7500000.0, out.Data.BurnedSupplyUSD)
	assert.Len(t, h.stored, 1)
	assert.Empty(t, h.notifier.notes)

	loaded, err := h.records.Load(context.Background(), runAt)
	require.NoError(t, err)
	assert.False(t, loaded.IsFallback)
}

func TestIndexIsIdempotentWithoutForce(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.fetcher.rec = freshRecord(t, 0.15)

	first := h.indexer.Index(context.Background(), IndexOptions{})
	require.Equal(t, StatusStored, first.Status)

	h.fetcher.rec = freshRecord(t, 0.16)
	second := h.indexer.Index(context.Background(), IndexOptions{})
	assert.True(t, second.Success)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, 1, h.fetcher.calls)

	dates, err := h.records.ListDates(context.Background())
	require.NoError(t, err)
	assert.Len(t, dates, 1)
	loaded, err := h.records.Load(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 0.15, loaded.PriceUSD)
}

func TestIndexForceOverwrites(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.fetcher.rec = freshRecord(t, 0.15)
	require.Equal(t, StatusStored, h.indexer.Index(context.Background(), IndexOptions{}).Status)

	h.fetcher.rec = freshRecord(t, 0.16)
	out := h.indexer.Index(context.Background(), IndexOptions{Force: true})
	assert.Equal(t, StatusStored, out.Status)

	loaded, err := h.records.Load(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, 0.16, loaded.PriceUSD)
}

func TestIndexFetchFailureFallsBackToPreviousDay(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.seedPrevious(t, 0.2)
	h.fetcher.err = errors.New("Price: timeout")

	out := h.indexer.Index(context.Background(), IndexOptions{Trigger: TriggerScheduled})
	require.True(t, out.Success)
	assert.Equal(t, StatusStoredFallback, out.Status)
	assert.Equal(t, []string{"Price: timeout"}, out.Errors)
	require.NotNil(t, out.Data)
	assert.True(t, out.Data.IsFallback)
	assert.Equal(t, "2026-10-13", out.Data.FallbackFrom)
	assert.Equal(t, "40000000", out.Data.BurnedSupply)
	assert.Equal(t, 8000000.0, out.Data.BurnedSupplyUSD)

	require.Len(t, h.notifier.notes, 1)
	assert.Equal(t, "stored_fallback", h.notifier.notes[0].Status)
	assert.Equal(t, "2026-10-13", h.notifier.notes[0].FallbackFrom)
}

func TestIndexFailsWithoutPreviousDay(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.fetcher.err = errors.New("Liquidity: connection refused")

	out := h.indexer.Index(context.Background(), IndexOptions{})
	assert.False(t, out.Success)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Message, "no previous data available for fallback")
	assert.Contains(t, out.Errors, "Liquidity: connection refused")
	assert.Empty(t, h.stored)
	require.Len(t, h.notifier.notes, 1)
	assert.Equal(t, "failed", h.notifier.notes[0].Status)
}

func TestIndexInvalidRecordKeepsValidFields(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.seedPrevious(t, 0.2)
	h.fetcher.rec = freshRecord(t, 0.5)

	out := h.indexer.Index(context.Background(), IndexOptions{})
	require.True(t, out.Success, out.Message)
	assert.Equal(t, StatusStoredFallback, out.Status)
	require.NotEmpty(t, out.Errors)
	assert.Contains(t, out.Errors[0], "price changed")

	require.NotNil(t, out.Data)
	assert.Equal(t, 0.2, out.Data.PriceUSD)
	assert.Equal(t, "50000000", out.Data.BurnedSupply)
	assert.Equal(t, 10000000.0, out.Data.BurnedSupplyUSD)
	assert.Empty(t, out.Warnings)
}

func TestIndexRecoversPanics(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.fetcher.panic = "nil map"

	out := h.indexer.Index(context.Background(), IndexOptions{})
	assert.False(t, out.Success)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Message, "nil map")
	assert.Equal(t, "2026-10-14", out.Date)
}

func TestIndexStorageFailure(t *testing.T) {
	h := newHarness(t, func(r *storage.RecordStore) RecordStore { return failingSaves{r} }, 0)
	h.fetcher.rec = freshRecord(t, 0.15)

	out := h.indexer.Index(context.Background(), IndexOptions{})
	assert.False(t, out.Success)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Message, "bucket unavailable")
}

func TestIndexLostWriteRaceKeepsFetchErrors(t *testing.T) {
	h := newHarness(t, func(r *storage.RecordStore) RecordStore { return racedSaves{r} }, 0)
	h.seedPrevious(t, 0.2)
	h.fetcher.err = errors.New("Price: timeout")

	out := h.indexer.Index(context.Background(), IndexOptions{})
	assert.True(t, out.Success)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, []string{"Price: timeout"}, out.Errors)
	assert.Empty(t, h.stored)
}

func TestIndexSkipsWhenLockHeldElsewhere(t *testing.T) {
	h := newHarness(t, func(r *storage.RecordStore) RecordStore { return heldLock{r} }, 42)
	h.fetcher.rec = freshRecord(t, 0.15)

	out := h.indexer.Index(context.Background(), IndexOptions{})
	assert.True(t, out.Success)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.Zero(t, h.fetcher.calls)
}

func TestIndexSerializesConcurrentRuns(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.fetcher.rec = freshRecord(t, 0.15)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 4)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = h.indexer.Index(context.Background(), IndexOptions{})
		}(i)
	}
	wg.Wait()

	stored := 0
	for _, out := range outcomes {
		require.True(t, out.Success)
		if out.Status == StatusStored {
			stored++
		}
	}
	assert.Equal(t, 1, stored)
}
