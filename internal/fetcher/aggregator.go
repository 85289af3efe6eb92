package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"tokenomics-indexer/internal/storage"
)

// Source labels, in the order failures are reported.
const (
	LabelBurned    = "Burned supply"
	LabelTreasury  = "Treasury supply"
	LabelPrice     = "Price"
	LabelLiquidity = "Liquidity"
)

// Sources bundles the upstream collaborators of the aggregator.
type Sources struct {
	Balances  BalanceSource
	Price     PriceSource
	Liquidity LiquiditySource
}

// AggregatorOptions identify the tracked addresses.
type AggregatorOptions struct {
	BurnAddress     string
	TreasuryAddress string
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// FetchError reports every failed source of a FetchAll call.
type FetchError struct {
	Failures []SourceFailure
}

// SourceFailure is one labelled failure.
type SourceFailure struct {
	Label string
	Err   error
}

func (e *FetchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Label+": "+f.Err.Error())
	}
	return strings.Join(parts, ", ")
}

// Unwrap exposes the individual source errors to errors.Is.
func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Aggregator fans the four source fetches out concurrently and assembles a
// DailyRecord for today.
type Aggregator struct {
	opts    AggregatorOptions
	sources Sources
	pool    pond.Pool
	logger  zerolog.Logger
}

// NewAggregator builds an aggregator backed by a small worker pool.
func NewAggregator(opts AggregatorOptions, sources Sources, logger zerolog.Logger) *Aggregator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{
		opts:    opts,
		sources: sources,
		pool:    pond.NewPool(4),
		logger:  logger.With().Str("component", "aggregator").Logger(),
	}
}

// Stop releases the worker pool.
func (a *Aggregator) Stop() {
	a.pool.StopAndWait()
}

// FetchAll runs all four fetches, waits for every one to settle, and returns
// either a full record or a FetchError naming each failed source.
func (a *Aggregator) FetchAll(ctx context.Context) (storage.DailyRecord, error) {
	now := a.opts.Now().UTC()

	var (
		burned, treasury                       string
		price, liquidity                       float64
		burnErr, treasuryErr, priceErr, liqErr error
	)

	group := a.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	group.Submit(func() {
		amount, found, err := a.balance(groupCtx, a.opts.BurnAddress)
		switch {
		case err != nil:
			burnErr = err
		case !found:
			burnErr = errors.New("token not found at burn address")
		default:
			burned = amount
		}
	})

	group.Submit(func() {
		amount, found, err := a.balance(groupCtx, a.opts.TreasuryAddress)
		switch {
		case err != nil:
			treasuryErr = err
		case !found:
			treasury = "0"
		default:
			treasury = amount
		}
	})

	group.Submit(func() {
		if a.sources.Price == nil {
			priceErr = errors.New("price source not configured")
			return
		}
		price, priceErr = a.sources.Price.Price(groupCtx)
	})

	group.Submit(func() {
		if a.sources.Liquidity == nil {
			liqErr = errors.New("liquidity source not configured")
			return
		}
		liquidity, liqErr = a.sources.Liquidity.Liquidity(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		a.logger.Warn().Err(err).Msg("source fan-out encountered error")
	}

	var failures []SourceFailure
	for _, f := range []SourceFailure{
		{Label: LabelBurned, Err: burnErr},
		{Label: LabelTreasury, Err: treasuryErr},
		{Label: LabelPrice, Err: priceErr},
		{Label: LabelLiquidity, Err: liqErr},
	} {
		if f.Err != nil {
			failures = append(failures, f)
		}
	}
	if len(failures) > 0 {
		fetchErr := &FetchError{Failures: failures}
		a.logger.Error().Err(fetchErr).Int("failed_sources", len(failures)).Msg("source aggregation failed")
		return storage.DailyRecord{}, fetchErr
	}

	rec := storage.DailyRecord{
		Date:                storage.DateKey(now),
		BurnedSupply:        burned,
		TreasurySupply:      treasury,
		PriceUSD:            price,
		OnChainLiquidityUSD: liquidity,
		UpdatedAt:           now,
	}
	if err := rec.Recompute(); err != nil {
		return storage.DailyRecord{}, fmt.Errorf("derive usd values: %w", err)
	}

	a.logger.Info().
		Str("date", rec.Date).
		Str("burned_supply", rec.BurnedSupply).
		Str("treasury_supply", rec.TreasurySupply).
		Float64("price_usd", rec.PriceUSD).
		Float64("liquidity_usd", rec.OnChainLiquidityUSD).
		Msg("sources aggregated")
	return rec, nil
}

func (a *Aggregator) balance(ctx context.Context, address string) (string, bool, error) {
	if a.sources.Balances == nil {
		return "", false, errors.New("balance source not configured")
	}
	if address == "" {
		return "", false, errors.New("address not configured")
	}
	return a.sources.Balances.Balance(ctx, address)
}
