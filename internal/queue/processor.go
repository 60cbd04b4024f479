// Package queue drives verification requests that need the external registry.
// Workers claim one request at a time, call the registry without holding any
// lock on the record, and hand the classified outcome to an OutcomeHandler
// which updates the request and the record together.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"verity/internal/platform/metrics"
	"verity/internal/registry"
	"verity/internal/verification/models"
)

// RegistryClient checks a marking code against the registry.
type RegistryClient interface {
	Verify(ctx context.Context, code string) (*models.RegistryResult, error)
}

// Store is the part of the verification store the queue needs.
type Store interface {
	ClaimNext(ctx context.Context, now time.Time) (*models.Request, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Request, error)
	AppendAudit(ctx context.Context, entry *models.RegistryAuditEntry) error
}

// OutcomeKind is what happens to a request after one attempt.
type OutcomeKind string

const (
	// OutcomeSucceeded means the registry answered; the answer may still be negative.
	OutcomeSucceeded OutcomeKind = "succeeded"
	// OutcomeRetry sends the request back to the queue.
	OutcomeRetry OutcomeKind = "retry"
	// OutcomeFailed ends the request without a registry answer.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome of one processing attempt.
type Outcome struct {
	Kind          OutcomeKind
	Result        *models.RegistryResult
	NextAttemptAt time.Time
	Reason        models.FailureReason
	Message       string
}

// OutcomeHandler persists an outcome: the request transition and, when the
// request is still authoritative, the record transition, in one transaction.
type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, req *models.Request, outcome Outcome) error
}

// Processor runs single attempts. It is safe for concurrent use.
type Processor struct {
	store       Store
	registry    RegistryClient
	handler     OutcomeHandler
	backoff     Backoff
	callTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
}

type ProcessorOption func(*Processor)

func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithClock overrides the processor's clock, for tests.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

// WithCallTimeout bounds each registry call.
func WithCallTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

func NewProcessor(store Store, registryClient RegistryClient, handler OutcomeHandler, backoff Backoff, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:       store,
		registry:    registryClient,
		handler:     handler,
		backoff:     backoff,
		callTimeout: 10 * time.Second,
		logger:      slog.Default(),
		tracer:      otel.Tracer("verity/queue"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessNext claims the next ready request and runs one attempt. It reports
// false when the queue had nothing ready.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	req, err := p.store.ClaimNext(ctx, p.now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim request: %w", err)
	}
	if req == nil {
		return false, nil
	}
	p.metrics.IncClaimed()
	return true, p.Process(ctx, req)
}

// Process runs one attempt of a request already claimed by this worker.
func (p *Processor) Process(ctx context.Context, req *models.Request) error {
	ctx, span := p.tracer.Start(ctx, "queue.process", trace.WithAttributes(
		attribute.String("verification.request_id", req.ID.String()),
		attribute.String("verification.record_id", req.RecordID.String()),
		attribute.Int("verification.attempt", req.Attempts),
	))
	defer span.End()

	outcome := p.attempt(ctx, req)
	span.SetAttributes(attribute.String("queue.outcome", string(outcome.Kind)))

	// A shutting-down worker still records what it learned.
	hctx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := p.handler.HandleOutcome(hctx, req, outcome); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("handle outcome of request %s: %w", req.ID, err)
	}

	p.metrics.IncQueueAttempt(string(outcome.Kind))
	if outcome.Kind == OutcomeRetry {
		p.metrics.ObserveBackoff(outcome.NextAttemptAt.Sub(p.now()))
	}
	p.logger.InfoContext(ctx, "verification request processed",
		"request_id", req.ID,
		"record_id", req.RecordID,
		"attempt", req.Attempts,
		"outcome", outcome.Kind,
		"reason", outcome.Reason,
	)
	return nil
}

func (p *Processor) attempt(ctx context.Context, req *models.Request) Outcome {
	payload, err := req.RegistryPayload()
	if err != nil || payload.Code == "" {
		return Outcome{
			Kind:    OutcomeFailed,
			Reason:  models.ReasonInvalidCodeFormat,
			Message: "request payload has no marking code",
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	start := time.Now()
	result, callErr := p.registry.Verify(callCtx, payload.Code)
	duration := time.Since(start)
	cancel()

	category := ""
	if callErr != nil {
		category = string(registry.CategoryOf(callErr))
	}
	p.metrics.ObserveRegistryCall(metricCategory(category), start)
	p.audit(ctx, req, payload, result, callErr, category, duration)

	return p.classify(ctx, req, result, callErr)
}

func (p *Processor) classify(ctx context.Context, req *models.Request, result *models.RegistryResult, err error) Outcome {
	switch {
	case err == nil && result != nil:
		return Outcome{Kind: OutcomeSucceeded, Result: result}
	case err == nil:
		err = registry.NewError(registry.ErrorBadData, "empty registry response", nil)
	}

	// Our own cancellation says nothing about the registry.
	transient := registry.IsRetryable(err) || ctx.Err() != nil
	if !transient {
		return Outcome{Kind: OutcomeFailed, Reason: permanentReason(err), Message: err.Error()}
	}
	if !req.HasAttemptsLeft() {
		return Outcome{
			Kind:    OutcomeFailed,
			Reason:  models.ReasonRegistryExhausted,
			Message: fmt.Sprintf("giving up after %d attempts: %v", req.Attempts, err),
		}
	}
	return Outcome{
		Kind:          OutcomeRetry,
		NextAttemptAt: p.now().UTC().Add(p.backoff.Delay(req.Attempts)),
		Message:       err.Error(),
	}
}

func permanentReason(err error) models.FailureReason {
	switch registry.CategoryOf(err) {
	case registry.ErrorNotFound:
		return models.ReasonCodeNotFound
	case registry.ErrorInvalidFormat:
		return models.ReasonInvalidCodeFormat
	default:
		return models.ReasonRegistryExhausted
	}
}

func metricCategory(category string) string {
	if category == "" {
		return "ok"
	}
	return category
}

func (p *Processor) audit(ctx context.Context, req *models.Request, payload models.RegistryCheckPayload,
	result *models.RegistryResult, callErr error, category string, duration time.Duration) {
	entry := &models.RegistryAuditEntry{
		ID:            uuid.New(),
		RecordID:      req.RecordID,
		RequestID:     req.ID,
		Attempt:       req.Attempts,
		ErrorCategory: category,
		Duration:      duration,
		CreatedAt:     p.now().UTC(),
	}
	if body, err := json.Marshal(map[string]string{"code": payload.Code}); err == nil {
		entry.RequestBody = body
	}
	if result != nil {
		if body, err := json.Marshal(result); err == nil {
			entry.ResponseBody = body
		}
	}
	if callErr != nil {
		entry.ErrorMessage = callErr.Error()
	}

	if err := p.store.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.ErrorContext(ctx, "failed to append registry audit entry",
			"error", err,
			"request_id", req.ID,
			"record_id", req.RecordID,
		)
	}
}

// RecoverStale resolves claims whose worker disappeared: requests still in
// processing after claimTimeout are retried when attempts remain and failed
// otherwise.
func (p *Processor) RecoverStale(ctx context.Context, claimTimeout time.Duration, limit int) (int, error) {
	now := p.now().UTC()
	stale, err := p.store.ListStale(ctx, now.Add(-claimTimeout), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale requests: %w", err)
	}

	var errs []error
	recovered := 0
	for _, req := range stale {
		outcome := Outcome{
			Kind:          OutcomeRetry,
			NextAttemptAt: now.Add(p.backoff.Delay(req.Attempts)),
			Message:       "claim expired before the attempt finished",
		}
		if !req.HasAttemptsLeft() {
			outcome = Outcome{
				Kind:    OutcomeFailed,
				Reason:  models.ReasonRegistryExhausted,
				Message: fmt.Sprintf("claim expired on final attempt %d", req.Attempts),
			}
		}
		if err := p.handler.HandleOutcome(ctx, req, outcome); err != nil {
			errs = append(errs, fmt.Errorf("request %s: %w", req.ID, err))
			continue
		}
		recovered++
		p.metrics.IncStaleClaim()
		p.logger.WarnContext(ctx, "recovered stale verification request",
			"request_id", req.ID,
			"record_id", req.RecordID,
			"attempt", req.Attempts,
			"outcome", outcome.Kind,
		)
	}
	return recovered, errors.Join(errs...)
}
