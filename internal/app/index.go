package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"tokenomics-indexer/internal/service"
)

// Index performs a single indexing run and prints the outcome as JSON.
func (a *App) Index(ctx context.Context, out io.Writer, opts IndexOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	agg, closeAgg := a.newAggregator()
	defer closeAgg()

	outcome := a.pipeline(store, nil, agg, nil).Index(ctx, service.IndexOptions{
		Force:   opts.Force,
		Trigger: service.TriggerManual,
	})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return err
	}
	if !outcome.Success {
		return fmt.Errorf("indexing failed: %s", outcome.Message)
	}
	return nil
}
