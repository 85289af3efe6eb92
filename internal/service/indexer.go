package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tokenomics-indexer/internal/alerting"
	"tokenomics-indexer/internal/metrics"
	"tokenomics-indexer/internal/scheduler"
	"tokenomics-indexer/internal/storage"
	"tokenomics-indexer/internal/validation"
)

// Status is the terminal state of an indexing run.
type Status string

const (
	StatusStored         Status = "stored"
	StatusStoredFallback Status = "stored_fallback"
	StatusSkipped        Status = "skipped"
	StatusFailed         Status = "failed"
)

// Triggers recorded on outcomes and metrics.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Outcome is returned by every indexing run.
type Outcome struct {
	Success         bool                 `json:"success"`
	Status          Status               `json:"status"`
	Date            string               `json:"date"`
	Message         string               `json:"message"`
	Warnings        []string             `json:"warnings,omitempty"`
	Errors          []string             `json:"errors,omitempty"`
	URL             string               `json:"url,omitempty"`
	Data            *storage.DailyRecord `json:"data,omitempty"`
	ExecutionTimeMs int64                `json:"execution_time_ms"`
}

// IndexOptions select run behaviour. Force overwrites an existing record for
// today instead of skipping.
type IndexOptions struct {
	Force   bool
	Trigger string
}

// Fetcher produces today's record from upstream sources.
type Fetcher interface {
	FetchAll(ctx context.Context) (storage.DailyRecord, error)
}

// Validator checks a candidate against an optional previous record.
type Validator interface {
	Validate(rec storage.DailyRecord, prev *storage.DailyRecord) validation.Outcome
}

// FallbackBuilder constructs a substitute record from the prior day.
type FallbackBuilder interface {
	Build(ctx context.Context, candidate storage.Candidate, date time.Time) (storage.DailyRecord, error)
}

// RecordStore persists daily records.
type RecordStore interface {
	Exists(ctx context.Context, date time.Time) (bool, error)
	Load(ctx context.Context, date time.Time) (storage.DailyRecord, error)
	Save(ctx context.Context, rec storage.DailyRecord, overwrite bool) (string, bool, error)
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}

// Deps are the collaborators of the indexer.
type Deps struct {
	Fetcher   Fetcher
	Validator Validator
	Fallback  FallbackBuilder
	Records   RecordStore
	Notifier  alerting.Notifier
	Scheduler *scheduler.Scheduler
	// OnStored is invoked after a record is written.
	OnStored func(rec storage.DailyRecord)
}

// Options tune the indexer.
type Options struct {
	LockKey    int64
	RunTimeout time.Duration
	Now        func() time.Time
}

// Indexer runs the fetch, validate, fallback, store pipeline once per call.
type Indexer struct {
	deps   Deps
	opts   Options
	mu     sync.Mutex
	logger zerolog.Logger
}

// New constructs the indexer.
func New(opts Options, deps Deps, logger zerolog.Logger) *Indexer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Indexer{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "indexer").Logger(),
	}
}

// Run drives scheduled indexing until ctx is cancelled.
func (s *Indexer) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		if s.opts.RunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
			defer cancel()
		}
		out := s.Index(ctx, IndexOptions{Trigger: TriggerScheduled})
		if !out.Success {
			return errors.New(out.Message)
		}
		return nil
	})
}

// Index executes one run. Runs are serialized within the process; across
// processes the store's advisory lock applies when configured.
func (s *Indexer) Index(ctx context.Context, opts IndexOptions) (out Outcome) {
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}
	start := time.Now()
	date := storage.Day(s.opts.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("date", storage.DateKey(date)).Msg("indexing run panicked")
			out = failed(date, fmt.Sprintf("unexpected error: %v", r), nil, out.Errors)
		}
		out.ExecutionTimeMs = time.Since(start).Milliseconds()
		s.finish(ctx, opts, out, time.Since(start))
	}()

	return s.index(ctx, date, opts)
}

func (s *Indexer) index(ctx context.Context, date time.Time, opts IndexOptions) Outcome {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return failed(date, err.Error(), nil, []string{err.Error()})
	}
	if !proceed {
		return Outcome{Success: true, Status: StatusSkipped, Date: storage.DateKey(date), Message: "another indexing run holds the lock"}
	}
	defer unlock()

	if !opts.Force {
		exists, err := s.deps.Records.Exists(ctx, date)
		if err != nil {
			msg := fmt.Sprintf("storage error: %v", err)
			return failed(date, msg, nil, []string{msg})
		}
		if exists {
			return Outcome{Success: true, Status: StatusSkipped, Date: storage.DateKey(date), Message: "record already exists for " + storage.DateKey(date)}
		}
	}

	prev := s.previous(ctx, date)

	rec, err := s.deps.Fetcher.FetchAll(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("date", storage.DateKey(date)).Msg("fetch failed, building fallback")
		return s.fallback(ctx, date, opts, storage.Candidate{}, nil, []string{err.Error()})
	}
	rec.Date = storage.DateKey(date)

	result := s.deps.Validator.Validate(rec, prev)
	if !result.Valid {
		s.logger.Warn().Strs("errors", result.Errors).Str("date", rec.Date).Msg("validation failed, building fallback")
		return s.fallback(ctx, date, opts, stripRejected(rec, result.Rejected), result.Warnings, result.Errors)
	}

	return s.store(ctx, rec, opts, StatusStored, result.Warnings, nil)
}

func (s *Indexer) fallback(ctx context.Context, date time.Time, opts IndexOptions, cand storage.Candidate, warnings, errs []string) Outcome {
	rec, err := s.deps.Fallback.Build(ctx, cand, date)
	if err != nil {
		errs = append(errs, err.Error())
		return failed(date, "no recovery possible: "+err.Error(), warnings, errs)
	}
	return s.store(ctx, rec, opts, StatusStoredFallback, warnings, errs)
}

func (s *Indexer) store(ctx context.Context, rec storage.DailyRecord, opts IndexOptions, status Status, warnings, errs []string) Outcome {
	date, _ := storage.ParseDate(rec.Date)
	url, created, err := s.deps.Records.Save(ctx, rec, opts.Force)
	if err != nil {
		msg := fmt.Sprintf("storage error: %v", err)
		return failed(date, msg, warnings, append(errs, msg))
	}
	if !created {
		return Outcome{Success: true, Status: StatusSkipped, Date: rec.Date, Message: "record already exists for " + rec.Date, Warnings: warnings, Errors: errs, URL: url}
	}

	msg := "stored record for " + rec.Date
	if status == StatusStoredFallback {
		msg = "stored fallback record for " + rec.Date + " from " + rec.FallbackFrom
	}
	return Outcome{
		Success:  true,
		Status:   status,
		Date:     rec.Date,
		Message:  msg,
		Warnings: warnings,
		Errors:   errs,
		URL:      url,
		Data:     &rec,
	}
}

// previous loads date-1 for comparative validation. Read failures only
// disable the comparison.
func (s *Indexer) previous(ctx context.Context, date time.Time) *storage.DailyRecord {
	prev, err := s.deps.Records.Load(ctx, date.AddDate(0, 0, -1))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("load previous record failed, skipping comparison")
		}
		return nil
	}
	return &prev
}

func (s *Indexer) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 {
		return func() {}, true, nil
	}
	unlock, acquired, err := s.deps.Records.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (s *Indexer) finish(ctx context.Context, opts IndexOptions, out Outcome, elapsed time.Duration) {
	metrics.RunsTotal.WithLabelValues(string(out.Status), opts.Trigger).Inc()
	metrics.RunDuration.Observe(elapsed.Seconds())
	metrics.ValidationWarningsTotal.Add(float64(len(out.Warnings)))

	event := s.logger.Info()
	if !out.Success {
		event = s.logger.Error()
	}
	event.Str("date", out.Date).
		Str("status", string(out.Status)).
		Str("trigger", opts.Trigger).
		Bool("force", opts.Force).
		Int64("execution_time_ms", out.ExecutionTimeMs).
		Strs("warnings", out.Warnings).
		Strs("errors", out.Errors).
		Msg(out.Message)

	if out.Data != nil {
		observeRecord(*out.Data)
		if s.deps.OnStored != nil {
			s.deps.OnStored(*out.Data)
		}
	}

	if s.deps.Notifier != nil && (out.Status == StatusFailed || out.Status == StatusStoredFallback) {
		note := alerting.Notification{
			Date:     out.Date,
			Status:   string(out.Status),
			Trigger:  opts.Trigger,
			Message:  out.Message,
			Errors:   out.Errors,
			Warnings: out.Warnings,
			Elapsed:  elapsed,
		}
		if out.Data != nil {
			note.FallbackFrom = out.Data.FallbackFrom
		}
		if err := s.deps.Notifier.Notify(context.WithoutCancel(ctx), note); err != nil {
			s.logger.Error().Err(err).Str("date", out.Date).Msg("failed to dispatch alert")
		}
	}
}

func observeRecord(rec storage.DailyRecord) {
	metrics.LastStoredTimestamp.Set(float64(rec.UpdatedAt.Unix()))
	metrics.TokenomicsValue.WithLabelValues("price_usd").Set(rec.PriceUSD)
	metrics.TokenomicsValue.WithLabelValues("on_chain_liquidity_usd").Set(rec.OnChainLiquidityUSD)
	metrics.TokenomicsValue.WithLabelValues("burned_supply_usd").Set(rec.BurnedSupplyUSD)
	metrics.TokenomicsValue.WithLabelValues("treasury_supply_usd").Set(rec.TreasurySupplyUSD)
	if v, err := strconv.ParseFloat(rec.BurnedSupply, 64); err == nil {
		metrics.TokenomicsValue.WithLabelValues("burned_supply").Set(v)
	}
	if v, err := strconv.ParseFloat(rec.TreasurySupply, 64); err == nil {
		metrics.TokenomicsValue.WithLabelValues("treasury_supply").Set(v)
	}
}

// stripRejected keeps only the fields no validation error condemned.
func stripRejected(rec storage.DailyRecord, rejected []validation.Field) storage.Candidate {
	cand := storage.CandidateFrom(rec)
	for _, f := range rejected {
		switch f {
		case validation.FieldBurnedSupply:
			cand.BurnedSupply = nil
		case validation.FieldTreasurySupply:
			cand.TreasurySupply = nil
		case validation.FieldPrice:
			cand.PriceUSD = nil
		case validation.FieldLiquidity:
			cand.OnChainLiquidityUSD = nil
		}
	}
	return cand
}

func failed(date time.Time, msg string, warnings, errs []string) Outcome {
	return Outcome{
		Success:  false,
		Status:   StatusFailed,
		Date:     storage.DateKey(date),
		Message:  msg,
		Warnings: warnings,
		Errors:   errs,
	}
}
