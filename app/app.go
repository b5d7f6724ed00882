package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/grantsnap/statekit/auth"
	"github.com/grantsnap/statekit/auth/jwt"
	"github.com/grantsnap/statekit/authcache"
	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/component"
	"github.com/grantsnap/statekit/ephemeral"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/kv/redisstore"
	"github.com/grantsnap/statekit/kv/sealed"
	"github.com/grantsnap/statekit/kv/sqlstore"
	"github.com/grantsnap/statekit/logger"
	"github.com/grantsnap/statekit/observability"
	"github.com/grantsnap/statekit/server"
)

const defaultGracefulTimeout = 15 * time.Second

// flusher is a persisted store seen by the shutdown path.
type flusher interface {
	Key() string
	ForceWrite(ctx context.Context)
	Close()
}

// App wires the stores, caches and auth provider of one statekit process
// and manages their lifecycle.
type App struct {
	Name       string
	Version    string
	Cfg        *Config
	Logger     *logger.Logger
	Components *component.Registry
	Metrics    *observability.Metrics
	Clock      clock.Clock
	Summary    *Summary

	durable   kv.Storage
	session   *kv.Session
	ephemeral *ephemeral.Cache
	tokens    *jwt.Service[*auth.Claims]
	provider  *auth.TokenProvider
	server    *server.Server

	authOnce sync.Once
	authMgr  *authcache.Manager

	mu     sync.Mutex
	stores []flusher

	gracefulTimeout time.Duration
	onStart         []Hook
	onStop          []Hook
	telemetry       []func(context.Context) error
}

// New validates cfg and builds the application. Storage backends are
// opened by Start.
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{
		Name:            cfg.Name,
		Version:         cfg.Version,
		Cfg:             cfg,
		Clock:           clock.OrReal(o.clock),
		gracefulTimeout: defaultGracefulTimeout,
	}
	if o.gracefulTimeout > 0 {
		a.gracefulTimeout = o.gracefulTimeout
	}

	if o.logger != nil {
		a.Logger = o.logger
	} else {
		a.Logger = logger.New(&cfg.Logging, cfg.Name)
		logger.SetGlobalLogger(a.Logger)
	}
	a.Components = component.NewRegistry(a.Logger)
	a.Summary = NewSummary(a.Name, a.Version, os.Stdout)
	a.Summary.AddInfo(fmt.Sprintf("%-12s %s", "auth", cfg.Auth.Describe()))

	if err := a.initTelemetry(ctx); err != nil {
		return nil, err
	}
	metrics, err := observability.NewMetrics(observability.Meter(observability.MeterName))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.Metrics = metrics

	if err := a.initStorage(o); err != nil {
		return nil, err
	}
	if err := a.initAuth(); err != nil {
		return nil, err
	}

	if cfg.Server.Enabled {
		a.server = server.New(cfg.Server, a.Logger)
		a.registerRoutes(a.server.Engine())
		if err := a.Components.Register(server.NewComponent(a.server)); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	if a.Cfg.Metrics.Enabled {
		mp, err := observability.InitMeter(ctx, &a.Cfg.Metrics)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		a.telemetry = append(a.telemetry, mp.Shutdown)
	}
	if a.Cfg.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, a.Cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		a.telemetry = append(a.telemetry, tp.Shutdown)
	}
	return nil
}

// initStorage selects the durable backend and opens the session namespace
// used by the ephemeral cache.
func (a *App) initStorage(o *appOptions) error {
	switch a.Cfg.Storage.Backend {
	case BackendSQLite:
		c := sqlstore.NewComponent(a.Cfg.Storage.SQLite, a.Logger, sqlstore.WithClock(a.Clock))
		if err := a.Components.Register(c); err != nil {
			return err
		}
		a.durable = backendStorage{name: BackendSQLite, store: func() kv.Storage {
			if st := c.Store(); st != nil {
				return st
			}
			return nil
		}}
	case BackendRedis:
		c := redisstore.NewComponent(a.Cfg.Storage.Redis, a.Logger)
		if err := a.Components.Register(c); err != nil {
			return err
		}
		a.durable = backendStorage{name: BackendRedis, store: func() kv.Storage {
			if st := c.Store(); st != nil {
				return st
			}
			return nil
		}}
	default:
		a.durable = kv.NewMemory()
	}

	backing := o.sessionBacking
	if backing == nil {
		backing = kv.NewMemory()
	}
	a.session = kv.NewSession(backing)
	a.ephemeral = ephemeral.NewCache(a.session,
		ephemeral.WithClock(a.Clock),
		ephemeral.WithLogger(a.Logger),
		ephemeral.WithMetrics(a.Metrics),
		ephemeral.WithKeyPrefix(a.Cfg.Ephemeral.KeyPrefix),
		ephemeral.WithDefaultMaxAge(a.Cfg.Ephemeral.MaxAge),
	)
	return nil
}

func (a *App) initAuth() error {
	var sessions kv.Storage = a.durable
	if a.Cfg.Auth.EncryptionKey != "" {
		s, err := sealed.New(a.durable, a.Cfg.Auth.EncryptionKey)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		sessions = s
	}

	tokens, err := jwt.NewService(&a.Cfg.Auth.JWT, auth.NewClaims, jwt.WithTimeFunc(a.Clock.Now))
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	a.tokens = tokens
	a.provider = auth.NewTokenProvider(tokens, sessions,
		auth.WithStorageKey(a.Cfg.Auth.StorageKey),
		auth.WithLogger(a.Logger),
	)
	return nil
}

// Durable returns the durable storage backend.
func (a *App) Durable() kv.Storage { return a.durable }

// Session returns the session-scoped storage namespace.
func (a *App) Session() *kv.Session { return a.session }

// Ephemeral returns the component state cache.
func (a *App) Ephemeral() *ephemeral.Cache { return a.ephemeral }

// Provider returns the token-backed auth provider.
func (a *App) Provider() *auth.TokenProvider { return a.provider }

// Tokens returns the token service used by the provider.
func (a *App) Tokens() *jwt.Service[*auth.Claims] { return a.tokens }

// Server returns the HTTP server, or nil when it is disabled.
func (a *App) Server() *server.Server { return a.server }

// Auth returns the process-wide auth cache, creating it on first use.
func (a *App) Auth() *authcache.Manager {
	a.authOnce.Do(func() {
		a.authMgr = authcache.New(a.provider,
			authcache.WithClock(a.Clock),
			authcache.WithLogger(a.Logger),
			authcache.WithTTL(a.Cfg.Auth.CacheTTL),
			authcache.WithMetrics(a.Metrics),
		)
	})
	return a.authMgr
}

func (a *App) track(f flusher) {
	a.mu.Lock()
	a.stores = append(a.stores, f)
	a.mu.Unlock()
}

// Start starts all components and runs the OnStart hooks.
func (a *App) Start(ctx context.Context) error {
	start := time.Now()
	a.Logger.Info("Starting application", logger.Fields("name", a.Name, "version", a.Version))

	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start components: %w", err)
	}
	if err := runHooks(ctx, a.onStart); err != nil {
		return fmt.Errorf("onStart hook failed: %w", err)
	}

	a.Summary.SetStartupDuration(time.Since(start))
	a.DisplaySummary()
	return nil
}

// Run starts the application, blocks until SIGINT, SIGTERM or ctx ends,
// then shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		if stopErr := a.Shutdown(context.Background()); stopErr != nil {
			a.Logger.Error("shutdown after failed start", logger.ErrorFields("shutdown", stopErr))
		}
		return err
	}
	a.Logger.Info("Application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.Shutdown(context.Background())
}

// WaitForSignal blocks until an interrupt or term signal, or ctx ends.
func (a *App) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// Shutdown flushes pending persisted writes, runs the OnStop hooks, ends
// the session, stops components in reverse order and flushes telemetry.
// It is bounded by the graceful timeout.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("Shutting down application", logger.Fields("timeout", a.gracefulTimeout.String()))

	ctx, cancel := context.WithTimeout(ctx, a.gracefulTimeout)
	defer cancel()

	a.mu.Lock()
	stores := a.stores
	a.stores = nil
	a.mu.Unlock()
	for _, s := range stores {
		s.ForceWrite(ctx)
		s.Close()
	}

	var errs []error
	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook error", logger.ErrorFields("stop_hooks", err))
		errs = append(errs, err)
	}
	if err := a.session.End(ctx); err != nil {
		a.Logger.Warn("failed to end session", logger.ErrorFields("end_session", err))
	}
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Shutdown completed with errors", logger.ErrorFields("stop_components", err))
		errs = append(errs, err)
	}
	for _, shutdown := range a.telemetry {
		if err := shutdown(ctx); err != nil {
			a.Logger.Warn("telemetry shutdown error", logger.ErrorFields("telemetry", err))
		}
	}

	a.Logger.Info("Application shutdown complete")
	return stderrors.Join(errs...)
}

// DisplaySummary writes the startup summary.
func (a *App) DisplaySummary() {
	var routes []RouteInfo
	if a.server != nil {
		for _, r := range a.server.Engine().Routes() {
			routes = append(routes, RouteInfo{Method: r.Method, Path: r.Path})
		}
	}
	a.Summary.Display(a.Components, routes)
}

// SetOutput redirects the startup summary, mainly for tests.
func (a *App) SetOutput(w io.Writer) { a.Summary.out = w }
