// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file (optionally hot reloaded) or from
// COWORKBILL_* environment variables.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/artpar/coworkbill/adapters/clock"
	"github.com/artpar/coworkbill/adapters/firestore"
	apihttp "github.com/artpar/coworkbill/adapters/http"
	"github.com/artpar/coworkbill/adapters/idgen"
	"github.com/artpar/coworkbill/adapters/memory"
	"github.com/artpar/coworkbill/adapters/metrics"
	"github.com/artpar/coworkbill/adapters/redislock"
	"github.com/artpar/coworkbill/adapters/sqlite"
	"github.com/artpar/coworkbill/app"
	"github.com/artpar/coworkbill/config"
	"github.com/artpar/coworkbill/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Options provides configuration for application initialization. Exactly one
// of Config or Holder must be set.
type Options struct {
	Config *config.Config

	// Holder enables hot reload of the billing and logging settings.
	Holder *config.Holder

	// Version is reported by /version.
	Version string

	// Logger overrides the logger built from the logging settings.
	Logger *zerolog.Logger
}

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Store      ports.BillStore
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	// Services
	Recurring *app.RecurringService
	Scheduler *app.Scheduler
	Billing   *app.BillingService

	config atomic.Pointer[config.Config]
	holder *config.Holder

	// Adapters (for cleanup)
	closers []closer
}

type closer struct {
	name string
	c    io.Closer
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if opts.Holder != nil {
		cfg = opts.Holder.Get()
	}
	if cfg == nil {
		return nil, fmt.Errorf("no configuration provided")
	}

	logger := NewLogger(cfg.Logging)
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	logger.Info().
		Str("store", cfg.Store.Driver).
		Dur("check_interval", cfg.Billing.CheckInterval).
		Msg("initializing coworkbill")

	a := &App{
		Logger: logger,
		holder: opts.Holder,
	}
	a.config.Store(cfg)

	ctx := context.Background()

	if err := a.initStore(ctx, cfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	a.Recurring = app.NewRecurringService(app.RecurringServiceConfig{
		Store:       a.Store,
		Calendar:    cfg.Billing.Calendar(),
		Clock:       clock.Real{},
		Locker:      a.initLocker(ctx, cfg),
		Metrics:     a.Metrics,
		Logger:      logger,
		Concurrency: cfg.Billing.Concurrency,
		LockTTL:     cfg.Redis.LockTTL,
	})

	a.Scheduler = app.NewScheduler(a.Recurring, app.SchedulerConfig{
		Interval: cfg.Billing.CheckInterval,
		Timeout:  cfg.Billing.CheckTimeout,
		Logger:   logger,
	})

	a.Billing = app.NewBillingService(app.BillingServiceConfig{
		Store:    a.Store,
		Clock:    clock.Real{},
		IDs:      idgen.UUID{},
		Logger:   logger,
		Calendar: a.Recurring.Calendar,
	})

	a.initHTTPServer(cfg, opts.Version)

	return a, nil
}

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	return a.config.Load()
}

func (a *App) initStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store.Driver {
	case "memory":
		a.Store = memory.NewBillStore(clock.Real{}, idgen.UUID{})
		a.Logger.Warn().Msg("using in-memory store, data is lost on restart")

	case "sqlite":
		db, err := sqlite.Open(cfg.Store.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closer{"sqlite", db})
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.Store = sqlite.NewBillStore(db, clock.Real{}, idgen.UUID{})
		a.Logger.Info().Str("dsn", cfg.Store.DSN).Msg("sqlite store ready")

	case "firestore":
		fcfg := firestore.Config{
			ProjectID:         cfg.Firestore.ProjectID,
			CredentialsFile:   cfg.Firestore.CredentialsFile,
			TenantsCollection: cfg.Firestore.TenantsCollection,
			BillsCollection:   cfg.Firestore.BillsCollection,
		}
		client, err := firestore.NewClient(ctx, fcfg)
		if err != nil {
			// Keep serving; billing calls report the store as not connected.
			a.Logger.Error().Err(err).Str("project", fcfg.ProjectID).Msg("firestore connection failed")
		}
		store := firestore.NewBillStore(client, fcfg)
		a.closers = append(a.closers, closer{"firestore", store})
		a.Store = store

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

func (a *App) initLocker(ctx context.Context, cfg *config.Config) ports.Locker {
	if cfg.Redis.Addr == "" {
		return redislock.NewLocal()
	}

	rdb := redislock.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	a.closers = append(a.closers, closer{"redis", rdb})

	locker := redislock.New(rdb, cfg.Redis.LockKey)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := locker.Ping(pingCtx); err != nil {
		a.Logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, checks proceed without the lock until it recovers")
	} else {
		a.Logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis check lock")
	}
	return locker
}

func (a *App) initHTTPServer(cfg *config.Config, version string) {
	routerCfg := apihttp.RouterConfig{
		Metrics:        a.Metrics,
		RequestTimeout: cfg.Server.RequestTimeout,
		Version:        version,
		EnableOpenAPI:  cfg.Server.EnableOpenAPI,
		CORS: &apihttp.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
	}
	if a.Metrics != nil {
		routerCfg.MetricsHandler = promhttp.Handler()
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	handler := apihttp.NewBillingHandler(a.Billing, a.Scheduler, a.Logger)
	router := apihttp.NewRouter(handler, apihttp.NewHealthHandler(a.Store), a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Start starts the scheduler and, when a holder is present, config reloads.
// It does not start the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if a.holder != nil {
		a.holder.OnChange(a.ApplyConfig)
		a.holder.OnReloadError(func(error) {
			if a.Metrics != nil {
				a.Metrics.ConfigReloadErrors.Inc()
			}
		})
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.holder.WatchSignals()
	}
	return nil
}

// ApplyConfig applies the reloadable settings of cfg to the running services.
func (a *App) ApplyConfig(cfg *config.Config) {
	old := a.config.Swap(cfg)

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a.Recurring.SetCalendar(cfg.Billing.Calendar())
	a.Recurring.SetConcurrency(cfg.Billing.Concurrency)
	a.Scheduler.SetTimeout(cfg.Billing.CheckTimeout)
	if old == nil || old.Billing.CheckInterval != cfg.Billing.CheckInterval {
		a.Scheduler.Reschedule(cfg.Billing.CheckInterval)
	}

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
	}
	a.Logger.Info().Msg("billing settings applied")
}

// Run starts the scheduler and the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		return err
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application. An in-flight check is given
// the shutdown timeout to finish before it is cancelled.
func (a *App) Shutdown() error {
	timeout := 30 * time.Second
	if cfg := a.Config(); cfg != nil && cfg.Server.ShutdownTimeout > 0 {
		timeout = cfg.Server.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
		a.holder = nil
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("scheduler stop error")
		}
	}

	a.Close()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// Close releases the store and lock connections. Shutdown calls it; CLI
// commands that never start the server call it directly.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			a.Logger.Error().Err(err).Str("component", c.name).Msg("close error")
		}
	}
	a.closers = nil
}

// NewLogger builds the process logger from the logging settings and sets the
// global level.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
