package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/internal/config"
	"github.com/MrEthical07/libauth/internal/httpapi"
	"github.com/MrEthical07/libauth/internal/logger"
	"github.com/MrEthical07/libauth/internal/notify"
	"github.com/MrEthical07/libauth/internal/stores"
	promexport "github.com/MrEthical07/libauth/metrics/export/prometheus"
)

type seedOptions struct {
	email    string
	password string
}

type application struct {
	cfg        *config.AppConfig
	logger     *zap.Logger
	engine     *libauth.Engine
	handler    http.Handler
	metrics    http.Handler
	pool       *pgxpool.Pool
	redis      redis.UniversalClient
	dispatcher *notify.Dispatcher
	kafka      *notify.KafkaSender
}

func newApplication(ctx context.Context, cfg *config.AppConfig, seed seedOptions) (_ *application, err error) {
	log, err := logger.NewWithLevel(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With(zap.String("service", cfg.App.Name))

	app := &application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	// -------- CREDENTIAL STORE --------
	var (
		store  libauth.CredentialStore
		memory *stores.Memory
	)
	if cfg.Postgres.DSN != "" {
		pool, err := stores.OpenPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		app.pool = pool
		store = stores.NewPostgres(pool, loc)
		log.Info("postgres credential store ready", zap.Int32("max_conns", cfg.Postgres.MaxConns))
	} else {
		memory = stores.NewMemory(loc)
		store = memory
		log.Warn("postgres.dsn not set, using the in-memory credential store")
	}

	builder := libauth.New().
		WithConfig(engineCfg).
		WithCredentialStore(store).
		WithLogger(log).
		WithAuditSink(libauth.NewZapSink(log))

	// -------- REDIS --------
	if cfg.Redis.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.redis = client
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := client.Ping(pingCtx).Err()
		cancel()
		if pingErr != nil {
			return nil, fmt.Errorf("init redis: %w", pingErr)
		}
		builder.WithRedis(client)
		if cfg.JWT.Revocation.Enabled {
			builder.WithRevocationChecker(stores.NewRedisDenylist(client, cfg.JWT.Revocation.Prefix))
		}
		log.Info("redis connected", zap.String("addr", cfg.Redis.Addr), zap.Bool("revocation", cfg.JWT.Revocation.Enabled))
	} else {
		log.Info("redis.addr not set, throttling and revocation lookups are off")
	}

	// -------- NOTIFIER --------
	var sender notify.Sender
	if len(cfg.Kafka.Brokers) > 0 {
		producer, perr := notify.NewKafkaProducer(cfg.Kafka.Brokers)
		if perr != nil {
			log.Warn("failed to init kafka producer, using log notifier", zap.Error(perr))
			sender = notify.NewLogSender(log)
		} else {
			app.kafka = notify.NewKafkaSender(producer, cfg.Kafka.Topic, log)
			sender = app.kafka
			log.Info("kafka notifier initialized", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
		}
	} else {
		log.Info("kafka brokers not configured, using log notifier")
		sender = notify.NewLogSender(log)
	}
	app.dispatcher = notify.NewDispatcher(notify.Config{
		QueueSize:   cfg.Notify.QueueSize,
		Workers:     cfg.Notify.Workers,
		SendTimeout: cfg.Notify.SendTimeout,
	}, sender, log)
	builder.WithNotifier(app.dispatcher)

	engine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	app.engine = engine

	report := engine.SecurityReport()
	log.Info("security posture",
		zap.Int("lockout_threshold", report.LockoutThreshold),
		zap.Bool("rate_limiting", report.RateLimitingActive),
		zap.Bool("revocation", report.RevocationActive),
		zap.Bool("audit", report.AuditActive),
		zap.Uint32("argon2_memory_kib", report.Argon2.Memory),
	)
	for _, w := range report.Warnings {
		log.Warn("security posture warning", zap.String("detail", w))
	}

	if memory != nil && seed.email != "" {
		if err := seedAdmin(ctx, engine, memory, seed); err != nil {
			return nil, err
		}
		log.Info("seeded admin account", zap.String("email", logger.MaskEmail(seed.email)))
	}

	// -------- METRICS --------
	var (
		httpMetrics *httpapi.HTTPMetrics
		gatherer    prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			promexport.NewCollector(engine),
		)
		httpMetrics, err = httpapi.NewHTTPMetrics(httpapi.HTTPMetricsOptions{Registerer: registry})
		if err != nil {
			return nil, fmt.Errorf("init http metrics: %w", err)
		}
		if cfg.Metrics.Addr != "" {
			app.metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		} else {
			gatherer = registry
		}
	}

	proxies, err := httpapi.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("http.trusted_proxies: %w", err)
	}

	app.handler = httpapi.NewRouter(httpapi.Options{
		Engine:         engine,
		Logger:         log,
		Location:       loc,
		Metrics:        httpMetrics,
		Gatherer:       gatherer,
		TrustedProxies: proxies,
	})
	return app, nil
}

func seedAdmin(ctx context.Context, engine *libauth.Engine, store *stores.Memory, seed seedOptions) error {
	if seed.password == "" {
		return errors.New("--seed-admin-password is required with --seed-admin-email")
	}
	hash, err := engine.HashPassword(seed.password)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	_, err = store.Create(ctx, &libauth.Principal{
		Email:        seed.email,
		FullName:     "Administrator",
		PasswordHash: hash,
		Type:         libauth.AccountAdmin,
		Status:       libauth.StatusActive,
		Roles:        []string{string(libauth.AccountAdmin)},
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down and releases resources.
func (a *application) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	servers := []*http.Server{srv}

	if a.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics)
		servers = append(servers, &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
		})
	}

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		a.logger.Info("starting http listener",
			zap.String("env", a.cfg.App.Env),
			zap.String("address", s.Addr),
		)
		go func(s *http.Server) {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("run server %s: %w", s.Addr, err)
			}
		}(s)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("listener failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("shutdown server %s: %w", s.Addr, err))
		}
	}
	return runErr
}

// close releases resources in dependency order: queued reset messages are
// flushed through the sender before the producer closes.
func (a *application) close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
		a.logger.Info("notify dispatcher drained",
			zap.Uint64("sent", a.dispatcher.Sent()),
			zap.Uint64("failed", a.dispatcher.Failed()),
			zap.Uint64("dropped", a.dispatcher.Dropped()),
		)
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.engine != nil {
		a.engine.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
