package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"tokenomics-indexer/internal/handler"
	"tokenomics-indexer/internal/history"
	"tokenomics-indexer/internal/metrics"
	"tokenomics-indexer/internal/middleware"
	"tokenomics-indexer/internal/service"
	"tokenomics-indexer/internal/storage"
	"tokenomics-indexer/internal/version"
)

// Run executes the long-running service: HTTP surface plus the daily scheduler.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics.BuildInfo.WithLabelValues(version.Version, version.Commit).Set(1)
	a.Logger.Info().Str("version", version.String()).Msg("starting tokenomics indexer")

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	agg, closeAgg := a.newAggregator()
	defer closeAgg()

	reader := a.newReader(store)
	defer reader.Stop()

	indexer := a.pipeline(store, sched, agg, func(storage.DailyRecord) { reader.Invalidate() })

	srv := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      a.router(store, reader, indexer),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.Config.Scheduler.Enabled {
		g.Go(func() error {
			a.Logger.Info().Msg("starting daily indexer")
			if err := indexer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		a.Logger.Warn().Msg("scheduler disabled; indexing only via POST /api/index")
	}

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}
	a.Logger.Info().Msg("service stopped")
	return nil
}

func (a *App) newReader(store *storage.RecordStore) *history.Reader {
	return history.NewReader(store, history.Options{
		CacheSize: a.Config.History.CacheSize,
		CacheTTL:  a.Config.History.CacheTTL,
	}, a.Logger)
}

func (a *App) router(store *storage.RecordStore, reader *history.Reader, indexer *service.Indexer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(a.Logger))
	r.Use(middleware.Logger(a.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(a.Config.Server.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(store))
	r.Get("/data/{key}", handler.Data(store.Blobs()))

	r.Route("/api", func(r chi.Router) {
		r.Get("/tokenomics", handler.Tokenomics(reader, a.Config.History.AllowedDays))
		r.Post("/index", handler.Index(indexer, a.Config.Server.IndexToken))
	})
	return r
}
