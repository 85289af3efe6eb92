package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tokenomics-indexer/internal/storage"
)

// ErrNoPreviousData is returned when no record exists for the prior day.
var ErrNoPreviousData = errors.New("no previous data available for fallback")

// RecordLoader reads stored records by day.
type RecordLoader interface {
	Load(ctx context.Context, date time.Time) (storage.DailyRecord, error)
}

// Builder constructs substitute records from the previous day's record.
type Builder struct {
	records RecordLoader
	now     func() time.Time
	logger  zerolog.Logger
}

// New builds a fallback builder.
func New(records RecordLoader, logger zerolog.Logger) *Builder {
	return &Builder{
		records: records,
		now:     time.Now,
		logger:  logger.With().Str("component", "fallback").Logger(),
	}
}

// Build backfills every absent candidate field from the record for
// date - 1 day and recomputes the USD fields.
func (b *Builder) Build(ctx context.Context, candidate storage.Candidate, date time.Time) (storage.DailyRecord, error) {
	day := storage.Day(date)
	prevDay := day.AddDate(0, 0, -1)

	prev, err := b.records.Load(ctx, prevDay)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.DailyRecord{}, ErrNoPreviousData
		}
		return storage.DailyRecord{}, fmt.Errorf("load %s: %w", storage.DateKey(prevDay), err)
	}

	rec := storage.DailyRecord{
		Date:                storage.DateKey(day),
		BurnedSupply:        pick(candidate.BurnedSupply, prev.BurnedSupply),
		TreasurySupply:      pick(candidate.TreasurySupply, prev.TreasurySupply),
		PriceUSD:            pick(candidate.PriceUSD, prev.PriceUSD),
		OnChainLiquidityUSD: pick(candidate.OnChainLiquidityUSD, prev.OnChainLiquidityUSD),
		UpdatedAt:           b.now().UTC(),
		IsFallback:          true,
		FallbackFrom:        storage.DateKey(prevDay),
	}
	if err := rec.Recompute(); err != nil {
		return storage.DailyRecord{}, fmt.Errorf("recompute usd values: %w", err)
	}

	b.logger.Warn().
		Str("date", rec.Date).
		Str("fallback_from", rec.FallbackFrom).
		Strs("backfilled", backfilled(candidate)).
		Msg("built fallback record")
	return rec, nil
}

func pick[T any](current *T, previous T) T {
	if current != nil {
		return *current
	}
	return previous
}

func backfilled(c storage.Candidate) []string {
	var fields []string
	if c.BurnedSupply == nil {
		fields = append(fields, "burned_supply")
	}
	if c.TreasurySupply == nil {
		fields = append(fields, "treasury_supply")
	}
	if c.PriceUSD == nil {
		fields = append(fields, "price_usd")
	}
	if c.OnChainLiquidityUSD == nil {
		fields = append(fields, "on_chain_liquidity_usd")
	}
	return fields
}
