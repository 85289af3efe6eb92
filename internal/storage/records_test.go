package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore(NewMemoryBlobStore("https://blobs.example"), "tokenomics", 0)

	rec := DailyRecord{
		Date:           "2026-10-14",
		BurnedSupply:   "50000000",
		TreasurySupply: "1000",
		PriceUSD:       0.15,
	}
	require.NoError(t, rec.Recompute())

	url, created, err := store.Save(ctx, rec, false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "https://blobs.example/tokenomics-2026-10-14.json", url)

	date, _ := ParseDate("2026-10-14")
	loaded, err := store.Load(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, 7500000.0, loaded.BurnedSupplyUSD)
	assert.Equal(t, 150.0, loaded.TreasurySupplyUSD)

	raw, err := store.Blobs().Get(ctx, store.Key(date))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "\n  \"date\""), "content should be pretty-printed")
}

func TestRecordStoreSaveWithoutOverwriteKeepsFirst(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore(NewMemoryBlobStore(""), "tokenomics", 0)

	_, created, err := store.Save(ctx, DailyRecord{Date: "2026-10-14", BurnedSupply: "1", TreasurySupply: "1", PriceUSD: 1}, false)
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = store.Save(ctx, DailyRecord{Date: "2026-10-14", BurnedSupply: "2", TreasurySupply: "2", PriceUSD: 2}, false)
	require.NoError(t, err)
	assert.False(t, created)

	date, _ := ParseDate("2026-10-14")
	loaded, err := store.Load(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, "1", loaded.BurnedSupply)

	_, created, err = store.Save(ctx, DailyRecord{Date: "2026-10-14", BurnedSupply: "3", TreasurySupply: "3", PriceUSD: 3}, true)
	require.NoError(t, err)
	assert.True(t, created)
	loaded, err = store.Load(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, "3", loaded.BurnedSupply)
}

func TestRecordStoreLoadMissing(t *testing.T) {
	store := NewRecordStore(NewMemoryBlobStore(""), "tokenomics", 0)
	_, err := store.Load(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNotFound)

	exists, err := store.Exists(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecordStoreListDatesPaginates(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore("")
	store := NewRecordStore(blobs, "tokenomics", 2)

	for day := 1; day <= 5; day++ {
		rec := DailyRecord{Date: fmt.Sprintf("2026-03-%02d", day), BurnedSupply: "0", TreasurySupply: "0", PriceUSD: 1}
		_, _, err := store.Save(ctx, rec, true)
		require.NoError(t, err)
	}
	_, err := blobs.Put(ctx, "other-2026-03-09.json", []byte("{}"))
	require.NoError(t, err)
	_, err = blobs.Put(ctx, "tokenomics-latest.json", []byte("{}"))
	require.NoError(t, err)

	dates, err := store.ListDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 5)
	assert.Equal(t, "2026-03-05", DateKey(dates[0]))
	assert.Equal(t, "2026-03-01", DateKey(dates[4]))
}

func TestUSDValueRoundsToCents(t *testing.T) {
	v, err := USDValue("50000000", 0.15)
	require.NoError(t, err)
	assert.Equal(t, 7500000.0, v)

	v, err = USDValue("3", 0.3333333)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = USDValue("abc", 1)
	require.Error(t, err)
}

func TestDayTruncatesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	in := time.Date(2026, 10, 15, 3, 0, 0, 0, loc)
	assert.Equal(t, "2026-10-14", DateKey(Day(in)))
}
