package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read once from the environment.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Registry RegistryConfig
	Queue    QueueConfig
	Trust    TrustConfig
	Expiry   ExpiryConfig
	Auth     AuthConfig
	LogLevel string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects Postgres. An empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig enables the shared trust config cache when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables notification publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers            []string
	NotificationsTopic string
	Partitions         int32
	ReplicationFactor  int16
	Linger             time.Duration
	RecordRetries      int
}

// RegistryConfig points at the marking registry. An empty BaseURL uses the
// simulated registry.
type RegistryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// BreakerFailures consecutive transient failures open the circuit for
	// BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// QueueConfig drives the retry queue workers and backoff policy.
type QueueConfig struct {
	Workers           int
	PollInterval      time.Duration
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffCap        time.Duration
	ClaimTimeout      time.Duration
}

type TrustConfig struct {
	CacheTTL time.Duration
}

// ExpiryConfig schedules the verified -> expired sweep (robfig/cron spec).
type ExpiryConfig struct {
	Schedule  string
	BatchSize int
}

type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	AdminRole     string
}

const envPrefix = "VERITY_"

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var p parser
	cfg := Config{
		Server: Server{
			Addr:            p.str("ADDR", ":8080"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:          p.str("DATABASE_URL", ""),
			MaxOpenConns: p.int("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: p.int("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:            p.list("KAFKA_BROKERS"),
			NotificationsTopic: p.str("KAFKA_NOTIFICATIONS_TOPIC", "verification-notifications"),
			Partitions:         int32(p.int("KAFKA_PARTITIONS", 3)),
			ReplicationFactor:  int16(p.int("KAFKA_REPLICATION_FACTOR", 1)),
			Linger:             p.duration("KAFKA_LINGER", 10*time.Millisecond),
			RecordRetries:      p.int("KAFKA_RECORD_RETRIES", 5),
		},
		Registry: RegistryConfig{
			BaseURL: p.str("REGISTRY_URL", ""),
			APIKey:  p.str("REGISTRY_API_KEY", ""),
			Timeout: p.duration("REGISTRY_TIMEOUT", 10*time.Second),

			BreakerFailures: p.int("REGISTRY_BREAKER_FAILURES", 5),
			BreakerCooldown: p.duration("REGISTRY_BREAKER_COOLDOWN", 30*time.Second),
		},
		Queue: QueueConfig{
			Workers:           p.int("QUEUE_WORKERS", 4),
			PollInterval:      p.duration("QUEUE_POLL_INTERVAL", time.Second),
			MaxAttempts:       p.int("QUEUE_MAX_ATTEMPTS", 3),
			BackoffBase:       p.duration("QUEUE_BACKOFF_BASE", 30*time.Second),
			BackoffMultiplier: p.float("QUEUE_BACKOFF_MULTIPLIER", 2),
			BackoffCap:        p.duration("QUEUE_BACKOFF_CAP", time.Hour),
			ClaimTimeout:      p.duration("QUEUE_CLAIM_TIMEOUT", 5*time.Minute),
		},
		Trust: TrustConfig{
			CacheTTL: p.duration("TRUST_CACHE_TTL", 5*time.Minute),
		},
		Expiry: ExpiryConfig{
			Schedule:  p.str("EXPIRY_SCHEDULE", "@every 5m"),
			BatchSize: p.int("EXPIRY_BATCH_SIZE", 500),
		},
		Auth: AuthConfig{
			JWTSigningKey: p.str("JWT_SIGNING_KEY", ""),
			Issuer:        p.str("JWT_ISSUER", ""),
			Audience:      p.str("JWT_AUDIENCE", ""),
			AdminRole:     p.str("JWT_ADMIN_ROLE", "admin"),
		},
		LogLevel: p.str("LOG_LEVEL", "info"),
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("VERITY_JWT_SIGNING_KEY is required"))
	}
	if c.Queue.Workers < 0 {
		errs = append(errs, errors.New("VERITY_QUEUE_WORKERS must not be negative"))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("VERITY_QUEUE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Queue.BackoffBase <= 0 || c.Queue.BackoffCap < c.Queue.BackoffBase {
		errs = append(errs, errors.New("VERITY_QUEUE_BACKOFF_BASE must be positive and not exceed VERITY_QUEUE_BACKOFF_CAP"))
	}
	if c.Queue.BackoffMultiplier <= 1 {
		errs = append(errs, errors.New("VERITY_QUEUE_BACKOFF_MULTIPLIER must be greater than 1"))
	}
	if c.Registry.Timeout <= 0 {
		errs = append(errs, errors.New("VERITY_REGISTRY_TIMEOUT must be positive"))
	}
	if c.Registry.BreakerFailures < 1 {
		errs = append(errs, errors.New("VERITY_REGISTRY_BREAKER_FAILURES must be at least 1"))
	}
	if c.Queue.ClaimTimeout <= c.Registry.Timeout {
		errs = append(errs, errors.New("VERITY_QUEUE_CLAIM_TIMEOUT must exceed VERITY_REGISTRY_TIMEOUT"))
	}
	return errors.Join(errs...)
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.lookup(key); ok {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	v, ok := p.lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
