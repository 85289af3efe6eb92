package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"tokenomics-indexer/internal/metrics"
	"tokenomics-indexer/internal/storage"
)

var (
	// ErrNoRecords is returned when the store holds no daily records.
	ErrNoRecords = errors.New("no tokenomics records found")
	// ErrInvalidRange is returned for a day-count outside the allowed set.
	ErrInvalidRange = errors.New("invalid range")
)

// DefaultDays is used when no range is requested.
const DefaultDays = 30

// Range is a requested window: the most recent Days records, or every record.
type Range struct {
	Days int
	All  bool
}

func (r Range) String() string {
	if r.All {
		return "all"
	}
	return strconv.Itoa(r.Days)
}

// ParseRange accepts one of allowed or "all". An empty value selects DefaultDays.
func ParseRange(raw string, allowed []int) (Range, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		raw = strconv.Itoa(DefaultDays)
	}
	if raw == "all" {
		return Range{All: true}, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, raw)
	}
	for _, d := range allowed {
		if d == days {
			return Range{Days: days}, nil
		}
	}
	return Range{}, fmt.Errorf("%w: %d days not in %v", ErrInvalidRange, days, allowed)
}

// Series holds the records column by column, in the same order as Records.
type Series struct {
	Dates               []string  `json:"dates"`
	BurnedSupply        []string  `json:"burned_supply"`
	TreasurySupply      []string  `json:"treasury_supply"`
	PriceUSD            []float64 `json:"price_usd"`
	OnChainLiquidityUSD []float64 `json:"on_chain_liquidity_usd"`
	BurnedSupplyUSD     []float64 `json:"burned_supply_usd"`
	TreasurySupplyUSD   []float64 `json:"treasury_supply_usd"`
}

// Result is the range-read response body.
type Result struct {
	Days         string                `json:"days"`
	TotalRecords int                   `json:"total_records"`
	Records      []storage.DailyRecord `json:"records"`
	Series       Series                `json:"series"`
}

// RecordSource lists and loads stored records.
type RecordSource interface {
	ListDates(ctx context.Context) ([]time.Time, error)
	Load(ctx context.Context, date time.Time) (storage.DailyRecord, error)
}

// Options tune the reader.
type Options struct {
	CacheSize   int
	CacheTTL    time.Duration
	Concurrency int
}

// Reader serves the most recent records, newest first, with a short-lived cache.
type Reader struct {
	records RecordSource
	cache   *lru.LRU[string, *Result]
	pool    pond.Pool
	logger  zerolog.Logger
}

// NewReader builds a reader. A zero CacheSize disables caching.
func NewReader(records RecordSource, opts Options, logger zerolog.Logger) *Reader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	r := &Reader{
		records: records,
		pool:    pond.NewPool(opts.Concurrency),
		logger:  logger.With().Str("component", "history").Logger(),
	}
	if opts.CacheSize > 0 {
		r.cache = lru.NewLRU[string, *Result](opts.CacheSize, nil, opts.CacheTTL)
	}
	return r
}

// Stop releases the load pool.
func (r *Reader) Stop() {
	r.pool.StopAndWait()
}

// Invalidate drops cached results.
func (r *Reader) Invalidate() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

// Recent returns the records covered by rng sorted newest first.
func (r *Reader) Recent(ctx context.Context, rng Range) (*Result, error) {
	key := rng.String()
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			metrics.HistoryCacheTotal.WithLabelValues("hit").Inc()
			return cached, nil
		}
		metrics.HistoryCacheTotal.WithLabelValues("miss").Inc()
	}

	dates, err := r.records.ListDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if len(dates) == 0 {
		return nil, ErrNoRecords
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	if !rng.All && len(dates) > rng.Days {
		dates = dates[:rng.Days]
	}

	records, err := r.load(ctx, dates)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Days:         key,
		TotalRecords: len(records),
		Records:      records,
		Series:       columns(records),
	}
	if r.cache != nil {
		r.cache.Add(key, result)
	}
	return result, nil
}

func (r *Reader) load(ctx context.Context, dates []time.Time) ([]storage.DailyRecord, error) {
	records := make([]storage.DailyRecord, len(dates))
	errs := make([]error, len(dates))

	group := r.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, date := range dates {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				errs[i] = err
				return
			}
			records[i], errs[i] = r.records.Load(groupCtx, date)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		r.logger.Warn().Err(err).Msg("record load group encountered error")
	}

	out := records[:0]
	for i, err := range errs {
		switch {
		case err == nil:
			out = append(out, records[i])
		case errors.Is(err, storage.ErrNotFound):
			r.logger.Debug().Str("date", storage.DateKey(dates[i])).Msg("record vanished between list and load")
		default:
			return nil, fmt.Errorf("load %s: %w", storage.DateKey(dates[i]), err)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

func columns(records []storage.DailyRecord) Series {
	s := Series{
		Dates:               make([]string, 0, len(records)),
		BurnedSupply:        make([]string, 0, len(records)),
		TreasurySupply:      make([]string, 0, len(records)),
		PriceUSD:            make([]float64, 0, len(records)),
		OnChainLiquidityUSD: make([]float64, 0, len(records)),
		BurnedSupplyUSD:     make([]float64, 0, len(records)),
		TreasurySupplyUSD:   make([]float64, 0, len(records)),
	}
	for _, rec := range records {
		s.Dates = append(s.Dates, rec.Date)
		s.BurnedSupply = append(s.BurnedSupply, rec.BurnedSupply)
		s.TreasurySupply = append(s.TreasurySupply, rec.TreasurySupply)
		s.PriceUSD = append(s.PriceUSD, rec.PriceUSD)
		s.OnChainLiquidityUSD = append(s.OnChainLiquidityUSD, rec.OnChainLiquidityUSD)
		s.BurnedSupplyUSD = append(s.BurnedSupplyUSD, rec.BurnedSupplyUSD)
		s.TreasurySupplyUSD = append(s.TreasurySupplyUSD, rec.TreasurySupplyUSD)
	}
	return s
}
