package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tokenomics-indexer/internal/alerting"
	"tokenomics-indexer/internal/config"
	"tokenomics-indexer/internal/fallback"
	"tokenomics-indexer/internal/fetcher"
	"tokenomics-indexer/internal/scheduler"
	"tokenomics-indexer/internal/service"
	"tokenomics-indexer/internal/storage"
	"tokenomics-indexer/internal/validation"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetchClient() *fetcher.Client {
	return fetcher.NewClient(fetcher.ClientOptions{
		Retry: fetcher.RetryOptions{
			MaxRetries:        a.Config.Retry.MaxRetries,
			RetryDelay:        a.Config.Retry.RetryDelay,
			BackoffMultiplier: a.Config.Retry.BackoffMultiplier,
			AttemptTimeout:    a.Config.Retry.AttemptTimeout,
		},
		UserAgent: a.Config.Sources.UserAgent,
	}, a.Logger)
}

func (a *App) newAggregator() (*fetcher.Aggregator, func()) {
	client := a.newFetchClient()
	token := a.Config.Token
	src := a.Config.Sources

	var (
		balances fetcher.BalanceSource
		closers  []func()
	)
	switch src.BalanceBackend {
	case "evm":
		evm := fetcher.NewEVMBalances(client, fetcher.EVMBalanceOptions{
			RPCURL:       src.EVMRPCURL,
			TokenAddress: src.EVMTokenAddress,
			Decimals:     token.Decimals,
		})
		balances = evm
		closers = append(closers, evm.Close)
	default:
		balances = fetcher.NewRESTBalances(client, fetcher.RESTBalanceOptions{
			BaseURL:  src.ChainRESTURL,
			Denom:    token.Denom,
			Decimals: token.Decimals,
		})
	}

	agg := fetcher.NewAggregator(fetcher.AggregatorOptions{
		BurnAddress:     token.BurnAddress,
		TreasuryAddress: token.TreasuryAddress,
	}, fetcher.Sources{
		Balances:  balances,
		Price:     fetcher.NewCoinGecko(client, fetcher.CoinGeckoOptions{BaseURL: src.PriceURL, CoinID: token.CoinGeckoID}),
		Liquidity: fetcher.NewPools(client, fetcher.PoolsOptions{URL: src.PoolsURL, Denom: token.Denom, Symbol: token.Symbol}),
	}, a.Logger)
	closers = append(closers, agg.Stop)

	return agg, func() {
		for _, c := range closers {
			c()
		}
	}
}

func (a *App) newValidator() *validation.Validator {
	v := a.Config.Validation
	return validation.New(validation.Thresholds{
		MinPriceUSD:     v.MinPriceUSD,
		MaxPriceUSD:     v.MaxPriceUSD,
		MaxChangePct:    v.MaxChangePct,
		USDTolerancePct: v.USDTolerancePct,
	})
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Cron:         a.Config.Scheduler.Cron,
	}, a.Logger)
}

// openStore connects the configured blob backend and wraps it as a record store.
func (a *App) openStore(ctx context.Context) (*storage.RecordStore, func(), error) {
	cfg := a.Config.Storage

	var (
		blobs  storage.BlobStore
		closer = func() {}
	)
	switch cfg.Backend {
	case "postgres":
		pool, err := storage.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		pg := storage.NewPostgresBlobStore(pool, cfg.PublicBaseURL)
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		blobs, closer = pg, pg.Close
	case "redis":
		rds, err := storage.NewRedisBlobStore(ctx, cfg.Redis, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		blobs, closer = rds, func() { _ = rds.Close() }
	case "memory", "":
		a.Logger.Warn().Msg("storage.backend is memory; records are lost on exit")
		blobs = storage.NewMemoryBlobStore(cfg.PublicBaseURL)
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	return storage.NewRecordStore(blobs, cfg.KeyPrefix, cfg.ListPageSize), closer, nil
}

// pipeline wires the indexer over store. sched may be nil for one-shot runs.
func (a *App) pipeline(store *storage.RecordStore, sched *scheduler.Scheduler, fetch service.Fetcher, onStored func(storage.DailyRecord)) *service.Indexer {
	return service.New(service.Options{
		LockKey:    a.Config.Scheduler.AdvisoryLockKey,
		RunTimeout: a.Config.Scheduler.RunTimeout,
	}, service.Deps{
		Fetcher:   fetch,
		Validator: a.newValidator(),
		Fallback:  fallback.New(store, a.Logger),
		Records:   store,
		Notifier:  a.newNotifier(),
		Scheduler: sched,
		OnStored:  onStored,
	}, a.Logger)
}

// ExportOptions hold parameters for exporting stored records.
type ExportOptions struct {
	Days     string
	CSVPath  string
	PNGPath  string
	XLSXPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// IndexOptions configure the one-shot index command.
type IndexOptions struct {
	Force bool
}
