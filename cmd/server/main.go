package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	jwttoken "verity/internal/jwt_token"
	"verity/internal/notify"
	"verity/internal/platform/config"
	"verity/internal/platform/httpserver"
	"verity/internal/platform/kafka"
	"verity/internal/platform/logger"
	"verity/internal/platform/metrics"
	"verity/internal/platform/middleware"
	"verity/internal/platform/postgres"
	"verity/internal/platform/redis"
	"verity/internal/queue"
	"verity/internal/registry"
	"verity/internal/reviews"
	"verity/internal/trust/settings"
	"verity/internal/verification/handler"
	"verity/internal/verification/service"
	"verity/internal/verification/store"
	"verity/pkg/platform/circuit"
	"verity/pkg/platform/httputil"
)

// main wires the process: HTTP API, retry queue workers and the expiry sweep
// share one service and stop together on SIGINT or SIGTERM. A .env file in
// the working directory is loaded first; real environment variables win.
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("verity stopped with error", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	db     *sql.DB
	redis  *redis.Client
	kafka  *kgo.Client
	closer []func()
}

func (i *infra) close() {
	for j := len(i.closer) - 1; j >= 0; j-- {
		i.closer[j]()
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	inf, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer inf.close()

	var (
		records     service.Store
		queueStore  queue.Store
		reviewStore service.ReviewStore
		configStore settings.Store
	)
	if inf.db != nil {
		pg := store.NewPostgres(inf.db)
		records, queueStore = pg, pg
		reviewStore = reviews.NewPostgresStore(inf.db)
		configStore = settings.NewPostgresStore(inf.db)
	} else {
		log.Warn("VERITY_DATABASE_URL not set; using in-memory stores")
		mem := store.NewInMemory()
		records, queueStore = mem, mem
		reviewStore = reviews.NewInMemoryStore()
		configStore = settings.NewInMemoryStore()
	}

	settingsOpts := []settings.Option{settings.WithLogger(log), settings.WithMetrics(m)}
	if inf.redis != nil {
		settingsOpts = append(settingsOpts, settings.WithCache(settings.NewRedisCache(inf.redis.Client), cfg.Trust.CacheTTL))
	} else {
		settingsOpts = append(settingsOpts, settings.WithCache(nil, cfg.Trust.CacheTTL))
	}
	configs := settings.New(configStore, settingsOpts...)
	if err := configs.Seed(ctx); err != nil {
		return err
	}

	var notifier service.Notifier = notify.NewLogDispatcher(log)
	if inf.kafka != nil {
		notifier = notify.NewKafkaDispatcher(inf.kafka, cfg.Kafka.NotificationsTopic,
			notify.WithLogger(log),
			notify.WithMetrics(m),
		)
	}

	var registryClient queue.RegistryClient = registry.Simulated{}
	if cfg.Registry.BaseURL != "" {
		registryClient = registry.NewGuarded(
			registry.NewHTTPClient(cfg.Registry.BaseURL, cfg.Registry.APIKey, cfg.Registry.Timeout),
			circuit.New("marking-registry",
				circuit.WithFailureThreshold(cfg.Registry.BreakerFailures),
				circuit.WithCooldown(cfg.Registry.BreakerCooldown),
			),
			log,
		)
	} else {
		log.Warn("VERITY_REGISTRY_URL not set; using the simulated registry")
	}

	svc := service.New(records, reviewStore, configs,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithNotifier(notifier),
		service.WithMaxAttempts(cfg.Queue.MaxAttempts),
	)
	processor := queue.NewProcessor(queueStore, registryClient, svc, queue.BackoffFromConfig(cfg.Queue),
		queue.WithLogger(log),
		queue.WithMetrics(m),
		queue.WithCallTimeout(cfg.Registry.Timeout),
	)
	worker := queue.NewWorker(processor, cfg.Queue, log)
	sweeper := service.NewExpirySweeper(svc, cfg.Expiry.Schedule, cfg.Expiry.BatchSize, log)

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := newRouter(handler.New(svc, configs, jwt, cfg.Auth.AdminRole, log), inf, log)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting verity", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		sweeper.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// connect opens the optional backing services. Each one left unconfigured
// falls back to its in-process replacement.
func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	inf := &infra{}

	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		inf.db = db
		inf.closer = append(inf.closer, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db, log); err != nil {
			inf.close()
			return nil, err
		}
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		inf.close()
		return nil, err
	}
	if rc != nil {
		inf.redis = rc
		inf.closer = append(inf.closer, func() { _ = rc.Close() })
	}

	kc, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		inf.close()
		return nil, err
	}
	if kc != nil {
		inf.kafka = kc
		inf.closer = append(inf.closer, func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := kc.Flush(flushCtx); err != nil {
				log.Warn("kafka flush on shutdown failed", "error", err)
			}
			kc.Close()
		})
		err := kafka.EnsureTopic(ctx, kc, cfg.Kafka.NotificationsTopic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor)
		if err != nil {
			inf.close()
			return nil, err
		}
	}
	return inf, nil
}

func newRouter(h *handler.Handler, inf *infra, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		healthy := true
		if inf.db != nil {
			checks["postgres"] = "ok"
			if err := inf.db.PingContext(r.Context()); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			}
		}
		if inf.redis != nil {
			checks["redis"] = "ok"
			if err := inf.redis.Health(r.Context()); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
	})
	r.Handle("/metrics", promhttp.Handler())

	h.Register(r)
	return r
}
