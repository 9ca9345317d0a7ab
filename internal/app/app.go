// Package app assembles a running certledger instance from configuration: the
// ledger backend behind the guard, the certificate cache and service, the audit
// sink and the HTTP router. Both cmd/server and cmd/certctl start here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certledger/internal/certificate/cache"
	"certledger/internal/certificate/handler"
	certmetrics "certledger/internal/certificate/metrics"
	"certledger/internal/certificate/service"
	"certledger/internal/certificate/timestamp"
	"certledger/internal/certificate/watcher"
	httpapi "certledger/internal/http"
	jwttoken "certledger/internal/jwt_token"
	"certledger/internal/ledger"
	"certledger/internal/ledger/ethereum"
	"certledger/internal/ledger/guard"
	"certledger/internal/ledger/memory"
	redisledger "certledger/internal/ledger/redis"
	"certledger/internal/platform/config"
	"certledger/internal/platform/logger"
	platformmetrics "certledger/internal/platform/metrics"
	redisclient "certledger/internal/platform/redis"
	ratelimitmetrics "certledger/internal/ratelimit/metrics"
	ratelimit "certledger/internal/ratelimit/middleware"
	ratelimitmodels "certledger/internal/ratelimit/models"
	"certledger/internal/ratelimit/store/bucket"
	audit "certledger/pkg/platform/audit"
	"certledger/pkg/platform/audit/publisher"
	kafkastore "certledger/pkg/platform/audit/store/kafka"
	auditmemory "certledger/pkg/platform/audit/store/memory"
	pgstore "certledger/pkg/platform/audit/store/postgres"
	"certledger/pkg/platform/circuit"
)

// App owns every long-lived dependency. Close releases them in reverse order
// of acquisition.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Codec    *timestamp.Codec
	Gateway  *guard.Gateway
	Cache    *cache.Cache
	Service  *service.Service
	Tokens   *jwttoken.JWTService
	// Audit is nil when the audit sink is "none".
	Audit *publisher.Publisher

	backend     ledger.Gateway
	redis       *redisclient.Client
	httpMetrics *platformmetrics.Metrics
	rateLimit   func(http.Handler) http.Handler
	checks      map[string]httpapi.HealthCheck
	closers     []func() error
}

type Option func(*options)

type options struct {
	logger  *slog.Logger
	backend ledger.Gateway
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBackend replaces the configured ledger backend.
func WithBackend(backend ledger.Gateway) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// New connects the configured ledger backend and audit sink. It does not read
// the ledger; call Warm for the initial cache fill.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.New(cfg.LogLevel)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   o.logger,
		Registry: prometheus.NewRegistry(),
		Codec:    timestamp.New(loc),
		Tokens:   jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, jwttoken.OperatorAudience),
		checks:   map[string]httpapi.HealthCheck{},
	}
	a.httpMetrics = platformmetrics.NewWith(a.Registry)
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.openBackend(ctx, o.backend); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Gateway = guard.New(a.backend,
		guard.WithBreaker(circuit.New("ledger",
			circuit.WithFailureThreshold(cfg.Breaker.FailureThreshold),
			circuit.WithSuccessThreshold(cfg.Breaker.SuccessThreshold),
			circuit.WithCooldown(cfg.Breaker.Cooldown),
		)),
		guard.WithMetrics(guard.NewMetricsWith(a.Registry)),
		guard.WithLogger(a.Logger),
	)

	if err := a.openAudit(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	if err := a.openRateLimit(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Cache = cache.New(a.Gateway)
	serviceOpts := []service.Option{
		service.WithLogger(a.Logger),
		service.WithMetrics(certmetrics.NewWith(a.Registry)),
	}
	if a.Audit != nil {
		serviceOpts = append(serviceOpts, service.WithAuditPublisher(a.Audit))
	}
	a.Service, err = service.New(a.Gateway, a.Cache, a.Codec, serviceOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openBackend(ctx context.Context, injected ledger.Gateway) error {
	cfg := a.Config
	if injected != nil {
		a.backend = injected
		return nil
	}

	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		a.backend = memory.New()
	case config.BackendRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return fmt.Errorf("connect redis ledger: %w", err)
		}
		a.backend = redisledger.New(client.Client,
			redisledger.WithKeyPrefix(cfg.Redis.KeyPrefix),
			redisledger.WithLogger(a.Logger),
		)
	case config.BackendEthereum:
		l, err := ethereum.Dial(ctx, ethereum.Config{
			RPCURL:          cfg.Ledger.RPCURL,
			ContractAddress: cfg.Ledger.ContractAddress,
			PrivateKey:      cfg.Ledger.PrivateKey,
			ChainID:         cfg.Ledger.ChainID,
		}, ethereum.WithLogger(a.Logger))
		if err != nil {
			return fmt.Errorf("connect ethereum ledger: %w", err)
		}
		a.closers = append(a.closers, func() error {
			l.Close()
			return nil
		})
		a.checks["ledger"] = l.Health
		a.backend = l
	default:
		return fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
	a.Logger.InfoContext(ctx, "ledger backend ready", "backend", cfg.Ledger.Backend)
	return nil
}

func (a *App) openAudit(ctx context.Context) error {
	cfg := a.Config
	var store audit.Store
	switch cfg.Audit.Sink {
	case "", config.AuditSinkNone:
		return nil
	case config.AuditSinkMemory:
		store = auditmemory.NewInMemoryStore()
	case config.AuditSinkPostgres:
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping audit database: %w", err)
		}
		a.checks["database"] = db.PingContext
		pg := pgstore.New(db)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
	case config.AuditSinkKafka:
		client, err := kafkastore.NewClient(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			client.Close()
			return nil
		})
		a.checks["kafka"] = client.Ping
		store = kafkastore.New(client, cfg.Kafka.Topic)
	default:
		return fmt.Errorf("unknown audit sink %q", cfg.Audit.Sink)
	}

	pubOpts := []publisher.Option{publisher.WithLogger(a.Logger)}
	if cfg.Audit.Buffer > 0 {
		pubOpts = append(pubOpts, publisher.WithAsyncBuffer(cfg.Audit.Buffer))
	}
	a.Audit = publisher.NewPublisher(store, pubOpts...)
	a.closers = append(a.closers, a.Audit.Close)
	a.Logger.InfoContext(ctx, "audit sink ready", "sink", cfg.Audit.Sink)
	return nil
}

// redisClient connects on first use and shares the client between the ledger
// backend and the rate limit store.
func (a *App) redisClient(ctx context.Context) (*redisclient.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := redisclient.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("redis.url is not configured")
	}
	a.closers = append(a.closers, client.Close)
	a.checks["redis"] = client.Health
	a.redis = client
	return client, nil
}

func (a *App) openRateLimit(ctx context.Context) error {
	cfg := a.Config.RateLimit
	if !cfg.Enabled {
		return nil
	}
	var store ratelimitmodels.BucketStore
	switch cfg.Store {
	case "", config.RateLimitStoreMemory:
		store = bucket.NewInMemoryBucketStore()
	case config.RateLimitStoreRedis:
		client, err := a.redisClient(ctx)
		if err != nil {
			return fmt.Errorf("connect rate limit store: %w", err)
		}
		store = bucket.NewRedisBucketStore(client.Client, a.Config.Redis.KeyPrefix)
	default:
		return fmt.Errorf("unknown rate limit store %q", cfg.Store)
	}
	limiter := ratelimit.New(store, cfg.Requests, cfg.Window,
		ratelimit.WithLogger(a.Logger),
		ratelimit.WithMetrics(ratelimitmetrics.NewWith(a.Registry)),
	)
	a.rateLimit = limiter.RateLimit
	return nil
}

// Warm performs the initial cache fill from the ledger.
func (a *App) Warm(ctx context.Context) error {
	records, err := a.Service.Refresh(ctx)
	if err != nil {
		return err
	}
	a.Logger.InfoContext(ctx, "certificate cache loaded", "certificates", len(records))
	return nil
}

// Watcher returns the event-driven refresher, or nil when notifications are
// disabled or the backend cannot emit them.
func (a *App) Watcher() *watcher.Watcher {
	if !a.Config.Ledger.WatchEvents {
		return nil
	}
	if _, ok := a.backend.(ledger.Notifier); !ok {
		a.Logger.Warn("ledger backend does not emit notifications, event watch disabled",
			"backend", a.Config.Ledger.Backend)
		return nil
	}
	return watcher.New(a.Gateway, a.Service, watcher.WithLogger(a.Logger))
}

// Backend exposes the unguarded ledger backend, e.g. to revoke on a
// development ledger.
func (a *App) Backend() ledger.Gateway {
	return a.backend
}

// Router builds the HTTP API.
func (a *App) Router() http.Handler {
	checks := make(map[string]httpapi.HealthCheck, len(a.checks))
	for name, check := range a.checks {
		checks[name] = check
	}
	return httpapi.NewRouter(httpapi.Deps{
		Certificates:   handler.New(a.Service, a.Codec, a.Logger),
		Validator:      jwttoken.NewJWTServiceAdapter(a.Tokens),
		Metrics:        a.httpMetrics,
		Logger:         a.Logger,
		Checks:         checks,
		MetricsHandler: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}),
		RateLimit:      a.rateLimit,

		TrustProxyHeaders: a.Config.Server.TrustProxyHeaders,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
