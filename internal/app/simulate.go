package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"tokenomics-indexer/internal/fallback"
	"tokenomics-indexer/internal/service"
	"tokenomics-indexer/internal/storage"
)

// SimulateOptions carry the static source values for a dry run.
type SimulateOptions struct {
	BurnedSupply        string
	TreasurySupply      string
	PriceUSD            float64
	OnChainLiquidityUSD float64
	Notify              bool
}

// Simulate runs validation and fallback against the stored previous day using
// the given values. Nothing is persisted.
func (a *App) Simulate(ctx context.Context, out io.Writer, opts SimulateOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := service.Deps{
		Fetcher:   &staticFetcher{opts: opts},
		Validator: a.newValidator(),
		Fallback:  fallback.New(store, a.Logger),
		Records:   &dryRunStore{RecordStore: store},
	}
	if opts.Notify {
		deps.Notifier = a.newNotifier()
	}

	outcome := service.New(service.Options{
		RunTimeout: a.Config.Scheduler.RunTimeout,
	}, deps, a.Logger).Index(ctx, service.IndexOptions{
		Force:   true,
		Trigger: service.TriggerManual,
	})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}

type staticFetcher struct {
	opts SimulateOptions
}

func (s *staticFetcher) FetchAll(ctx context.Context) (storage.DailyRecord, error) {
	now := time.Now().UTC()
	rec := storage.DailyRecord{
		Date:                storage.DateKey(storage.Day(now)),
		BurnedSupply:        s.opts.BurnedSupply,
		TreasurySupply:      s.opts.TreasurySupply,
		PriceUSD:            s.opts.PriceUSD,
		OnChainLiquidityUSD: s.opts.OnChainLiquidityUSD,
		UpdatedAt:           now,
	}
	if err := rec.Recompute(); err != nil {
		return storage.DailyRecord{}, fmt.Errorf("simulated values: %w", err)
	}
	return rec, nil
}

// dryRunStore reads from the real store but never writes.
type dryRunStore struct {
	*storage.RecordStore
}

func (d *dryRunStore) Save(ctx context.Context, rec storage.DailyRecord, overwrite bool) (string, bool, error) {
	date, err := storage.ParseDate(rec.Date)
	if err != nil {
		return "", false, err
	}
	return "dry-run://" + d.Key(date), true, nil
}

func (d *dryRunStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	return func() {}, true, nil
}

var _ service.Fetcher = (*staticFetcher)(nil)
var _ service.RecordStore = (*dryRunStore)(nil)
