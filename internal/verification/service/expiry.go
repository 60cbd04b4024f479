package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Expirer is the part of the service the sweeper drives.
type Expirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// ExpirySweeper runs ExpireDue on a cron schedule.
type ExpirySweeper struct {
	cron      *cron.Cron
	expirer   Expirer
	schedule  string
	batchSize int
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
}

func NewExpirySweeper(expirer Expirer, schedule string, batchSize int, logger *slog.Logger) *ExpirySweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirySweeper{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		expirer:   expirer,
		schedule:  schedule,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start registers the sweep and starts the scheduler. ctx bounds each sweep.
func (e *ExpirySweeper) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("expiry sweeper already running")
	}
	e.ctx = ctx
	if _, err := e.cron.AddFunc(e.schedule, e.Sweep); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", e.schedule, err)
	}
	e.cron.Start()
	e.running = true
	e.logger.InfoContext(ctx, "expiry sweeper started", "schedule", e.schedule)
	return nil
}

// Sweep runs one pass.
func (e *ExpirySweeper) Sweep() {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}
	if _, err := e.expirer.ExpireDue(ctx, e.batchSize); err != nil {
		e.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	}
}

// Stop stops scheduling and waits for a running sweep to finish.
func (e *ExpirySweeper) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	<-e.cron.Stop().Done()
}
