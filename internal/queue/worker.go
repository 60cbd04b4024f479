package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"verity/internal/platform/config"
)

const staleBatch = 100

// Worker runs a pool of polling loops over a Processor plus a janitor that
// recovers stale claims.
type Worker struct {
	processor    *Processor
	workers      int
	pollInterval time.Duration
	claimTimeout time.Duration
	logger       *slog.Logger
}

func NewWorker(processor *Processor, cfg config.QueueConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		processor:    processor,
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		claimTimeout: cfg.ClaimTimeout,
		logger:       logger,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = time.Second
	}
	if w.claimTimeout <= 0 {
		w.claimTimeout = 5 * time.Minute
	}
	return w
}

// Run blocks until ctx is cancelled. A pool of zero workers returns at once.
func (w *Worker) Run(ctx context.Context) error {
	if w.workers <= 0 {
		w.logger.InfoContext(ctx, "verification queue disabled")
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range w.workers {
		g.Go(func() error {
			w.poll(ctx, i)
			return nil
		})
	}
	g.Go(func() error {
		w.janitor(ctx)
		return nil
	})

	w.logger.InfoContext(ctx, "verification queue started", "workers", w.workers)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) poll(ctx context.Context, id int) {
	for {
		processed, err := w.processor.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "verification queue attempt failed",
				"error", err,
				"worker", id,
			)
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Worker) janitor(ctx context.Context) {
	ticker := time.NewTicker(w.claimTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.processor.RecoverStale(ctx, w.claimTimeout, staleBatch); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "stale claim recovery failed", "error", err)
			}
		}
	}
}
