// Package service is the verification core. It accepts proof of purchase,
// applies every status change through one transactional transition function
// (record update, status history, review badge) and consumes the outcomes of
// the registry retry queue.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"verity/internal/platform/metrics"
	"verity/internal/reviews"
	"verity/internal/trust"
	"verity/internal/verification/models"
	dErrors "verity/pkg/domain-errors"
	"verity/pkg/platform/sentinel"
	"verity/pkg/requestcontext"
)

// Store persists records, their history, queued requests and registry audit.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateRecord(ctx context.Context, rec *models.Record) error
	FindRecord(ctx context.Context, id uuid.UUID) (*models.Record, error)
	FindRecordByReview(ctx context.Context, reviewID uuid.UUID) (*models.Record, error)
	UpdateRecord(ctx context.Context, rec *models.Record) error
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]*models.Record, error)

	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	ListHistory(ctx context.Context, recordID uuid.UUID) ([]*models.HistoryEntry, error)

	CreateRequest(ctx context.Context, req *models.Request) error
	FindRequest(ctx context.Context, id uuid.UUID) (*models.Request, error)
	ListRequests(ctx context.Context, recordID uuid.UUID, statuses ...models.RequestStatus) ([]*models.Request, error)
	CompleteRequest(ctx context.Context, id uuid.UUID, result *models.RegistryResult, now time.Time) error
	FailRequest(ctx context.Context, id uuid.UUID, result *models.RegistryResult, message string, now time.Time) error
	RequeueRequest(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, message string, now time.Time) error
	CancelRequest(ctx context.Context, id uuid.UUID, now time.Time) (*models.Request, error)
	CancelQueuedForRecord(ctx context.Context, recordID uuid.UUID, now time.Time) (int, error)

	ListAudit(ctx context.Context, recordID uuid.UUID) ([]*models.RegistryAuditEntry, error)
}

// ReviewStore is the marketplace review table.
type ReviewStore interface {
	GetReview(ctx context.Context, id uuid.UUID) (*reviews.Review, error)
	SetVerificationBadge(ctx context.Context, reviewID uuid.UUID, method models.Method, trustWeight float64) error
	ClearVerificationBadge(ctx context.Context, reviewID uuid.UUID) error
}

// Notifier delivers best-effort user notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any)
}

type Service struct {
	store       Store
	reviews     ReviewStore
	configs     trust.ConfigProvider
	engine      *trust.Engine
	notifier    Notifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	maxAttempts int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithMaxAttempts sets max_attempts on newly queued registry requests.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func New(store Store, reviewStore ReviewStore, configs trust.ConfigProvider, opts ...Option) *Service {
	s := &Service{
		store:       store,
		reviews:     reviewStore,
		configs:     configs,
		engine:      trust.NewEngine(configs),
		logger:      slog.Default(),
		maxAttempts: models.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	return s
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, uuid.UUID, string, map[string]any) {}

// requireCaller returns the authenticated caller or an unauthorized error.
func requireCaller(ctx context.Context) (uuid.UUID, error) {
	userID := requestcontext.UserID(ctx)
	if userID == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return userID, nil
}

func requireAdmin(ctx context.Context) (uuid.UUID, error) {
	userID, err := requireCaller(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if !requestcontext.IsAdmin(ctx) {
		return uuid.Nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return userID, nil
}

// translate turns store sentinels into coded errors. Coded errors pass through.
func translate(err error, what string) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" already exists")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidTransition, what+" is not in a state that allows this")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+what)
	}
}
