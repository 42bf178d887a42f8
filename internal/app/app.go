package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/evikzub/CVTransformer/internal/auth"
	"github.com/evikzub/CVTransformer/internal/config"
	"github.com/evikzub/CVTransformer/internal/event"
	handler "github.com/evikzub/CVTransformer/internal/handler/http"
	"github.com/evikzub/CVTransformer/internal/repository"
	"github.com/evikzub/CVTransformer/internal/repository/memory"
	"github.com/evikzub/CVTransformer/internal/repository/postgres"
	redisrepo "github.com/evikzub/CVTransformer/internal/repository/redis"
	"github.com/evikzub/CVTransformer/internal/service"
	"github.com/evikzub/CVTransformer/internal/session"
	"github.com/evikzub/CVTransformer/internal/tracker/redmine"
	"github.com/evikzub/CVTransformer/migrations"
	"github.com/evikzub/CVTransformer/pkg/database"
	"github.com/evikzub/CVTransformer/pkg/health"
	"github.com/evikzub/CVTransformer/pkg/httpclient"
	pkgkafka "github.com/evikzub/CVTransformer/pkg/kafka"
	"github.com/evikzub/CVTransformer/pkg/middleware"
	"github.com/evikzub/CVTransformer/pkg/tracing"
)

// Version is reported in traces.
var Version = "0.1.0"

// App wires together all dependencies and runs the service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	sessions       *session.Store
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// stop cancels the background goroutines started in NewApp.
	stop context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	tc := tracing.DefaultConfig(handler.ServiceName)
	tc.ServiceVersion = Version
	tc.Environment = cfg.Environment
	tc.OTLPEndpoint = cfg.OTLPEndpoint
	tc.SampleRate = cfg.TracingSampleRate
	tc.Enabled = cfg.TracingEnabled
	a.tracerShutdown, err = tracing.InitTracer(ctx, tc)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	// User store.
	var users repository.UserRepository
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		users = memory.NewUserRepository()
		logger.Warn("using in-memory user store; users are lost on restart")
	default:
		pgCfg := cfg.Postgres()
		a.pool, err = database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)

		if err = database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, handler.ServiceName); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}

		if err = database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		if cfg.SlowQueryThreshold > 0 {
			database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
		}

		users = postgres.NewUserRepository(a.pool)
		pool := a.pool
		healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	}

	// Identity cache. A nil cache sends every lookup to the tracker.
	var identities repository.IdentityCache
	if cfg.IdentityCacheEnabled() {
		a.redis, err = database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
		identities = redisrepo.NewIdentityCache(a.redis, cfg.IdentityCacheTTL)
		rdb := a.redis
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Domain events.
	var events service.EventPublisher = event.Discard{}
	if cfg.EventsEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		producer := a.producer
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	tokens, err := auth.NewJWTManager(cfg.JWTSecret,
		auth.WithValidity(cfg.JWTValidity),
		auth.WithRefreshWindow(cfg.JWTRefreshWindow),
	)
	if err != nil {
		return nil, fmt.Errorf("create jwt manager: %w", err)
	}

	// Remote tracker behind a circuit breaker. Requests are bounded by the
	// per-call timeouts of the Redmine client, so the transport timeout only
	// caps the slower of the two.
	hc := httpclient.DefaultConfig("redmine")
	hc.Timeout = max(cfg.RedmineAuthTimeout, cfg.RedmineQueryTimeout)
	breaker := httpclient.NewCircuitBreakerClient(httpclient.New(hc), httpclient.DefaultCircuitBreakerConfig("redmine"), logger)
	tracker, err := redmine.NewClient(redmine.Config{
		BaseURL:          cfg.RedmineURL,
		APIKey:           cfg.RedmineAPIKey,
		DefaultProjectID: cfg.RedmineProjectID,
		AuthTimeout:      cfg.RedmineAuthTimeout,
		QueryTimeout:     cfg.RedmineQueryTimeout,
	}, breaker, logger)
	if err != nil {
		return nil, fmt.Errorf("create redmine client: %w", err)
	}

	// Sessions.
	sealer, err := session.NewSealer()
	if err != nil {
		return nil, fmt.Errorf("create session sealer: %w", err)
	}
	a.sessions = session.NewStore(sealer, cfg.SessionIdleTTL, logger)

	// Build the dependency graph.
	sessionService := service.NewSessionService(users, tracker, tokens, events, logger)
	ticketService := service.NewTicketService(tracker, users, identities, events, service.TicketConfig{
		ProjectID:    cfg.RedmineProjectID,
		TrackerIDs:   cfg.RedmineTrackerIDs,
		PerPage:      cfg.TicketsPerPage,
		PreferAPIKey: cfg.RedminePreferAPIKey,
	}, logger)

	healthHandler.RegisterNonCritical("redmine", sessionService.CheckTracker)

	// Background work lives until Shutdown.
	bg, stop := context.WithCancel(context.Background())
	a.stop = stop
	go a.sessions.CleanupLoop(bg, cfg.SessionCleanupInterval)

	router := handler.NewRouter(bg, sessionService, ticketService, a.sessions, healthHandler, handler.RouterConfig{
		CORS:               middleware.DefaultCORSConfig(cfg.CORSAllowedOrigins),
		SecureCookie:       cfg.SessionCookieSecure || cfg.IsProduction(),
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		LoginBurst:         cfg.LoginBurst,
		PprofCIDRs:         cfg.PprofAllowedCIDRs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer, Redis client and PostgreSQL pool
// 4. Session store (wipes cached credentials)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.HTTPShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() []error {
	var errs []error

	if a.stop != nil {
		a.stop()
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	if a.sessions != nil {
		a.sessions.Close()
	}

	return errs
}
