package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the verification pipeline.
// Every method is safe to call on a nil *Metrics.
type Metrics struct {
	Submissions          *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	QueueAttempts        *prometheus.CounterVec
	QueueClaimed         prometheus.Counter
	StaleClaims          prometheus.Counter
	BackoffDelay         prometheus.Histogram
	RegistryLatency      *prometheus.HistogramVec
	TrustCacheLookups    *prometheus.CounterVec
	ConfigurationMissing prometheus.Counter
	NotificationFailures *prometheus.CounterVec
	ExpiredSweep         prometheus.Counter
}

// New registers the collectors with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_verification_submissions_total",
			Help: "Verification submissions by method and result",
		}, []string{"method", "result"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_verification_transitions_total",
			Help: "Verification record status transitions",
		}, []string{"from", "to"}),
		QueueAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_queue_attempts_total",
			Help: "Registry request attempts by outcome (succeeded, retry, failed, stale)",
		}, []string{"outcome"}),
		QueueClaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "verity_queue_claimed_total",
			Help: "Requests claimed by queue workers",
		}),
		StaleClaims: f.NewCounter(prometheus.CounterOpts{
			Name: "verity_queue_stale_claims_total",
			Help: "Processing claims released after the claim timeout",
		}),
		BackoffDelay: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_queue_backoff_delay_seconds",
			Help:    "Delay scheduled before a transient retry",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600},
		}),
		RegistryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verity_registry_call_duration_seconds",
			Help:    "Duration of registry calls by error category (ok on success)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"category"}),
		TrustCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_trust_config_cache_lookups_total",
			Help: "Trust config cache lookups by result (hit, miss)",
		}, []string{"result"}),
		ConfigurationMissing: f.NewCounter(prometheus.CounterOpts{
			Name: "verity_trust_config_missing_total",
			Help: "Lookups that found neither an organization nor a default trust config",
		}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_notification_failures_total",
			Help: "Notifications that could not be delivered, by event",
		}, []string{"event"}),
		ExpiredSweep: f.NewCounter(prometheus.CounterOpts{
			Name: "verity_verifications_expired_total",
			Help: "Verified records moved to expired by the sweep",
		}),
	}
}

func (m *Metrics) IncSubmission(method, result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(method, result).Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncQueueAttempt(outcome string) {
	if m == nil {
		return
	}
	m.QueueAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncClaimed() {
	if m == nil {
		return
	}
	m.QueueClaimed.Inc()
}

func (m *Metrics) IncStaleClaim() {
	if m == nil {
		return
	}
	m.StaleClaims.Inc()
}

func (m *Metrics) ObserveBackoff(d time.Duration) {
	if m == nil {
		return
	}
	m.BackoffDelay.Observe(d.Seconds())
}

// ObserveRegistryCall records a registry call started at start.
func (m *Metrics) ObserveRegistryCall(category string, start time.Time) {
	if m == nil {
		return
	}
	m.RegistryLatency.WithLabelValues(category).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.TrustCacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.TrustCacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) IncConfigurationMissing() {
	if m == nil {
		return
	}
	m.ConfigurationMissing.Inc()
}

func (m *Metrics) IncNotificationFailure(event string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(event).Inc()
}

func (m *Metrics) AddExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpiredSweep.Add(float64(n))
}
