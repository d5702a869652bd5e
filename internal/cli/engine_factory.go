package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/clara"
	"github.com/aretw0/clara/internal/adapters/file"
	"github.com/aretw0/clara/internal/config"
	httpadapter "github.com/aretw0/clara/pkg/adapters/http"
	mcpadapter "github.com/aretw0/clara/pkg/adapters/mcp"
	"github.com/aretw0/clara/pkg/adapters/memory"
	"github.com/aretw0/clara/pkg/adapters/redis"
	"github.com/aretw0/clara/pkg/adapters/simulated"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/observability"
	"github.com/aretw0/clara/pkg/persistence/middleware"
	"github.com/aretw0/clara/pkg/pipeline"
	"github.com/aretw0/clara/pkg/planner"
	"github.com/aretw0/clara/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is a configured engine together with the infrastructure it runs on.
type App struct {
	Engine   *clara.Engine
	Store    ports.StateStore
	Streams  *httpadapter.StreamManager
	Registry *prometheus.Registry
	Logger   *slog.Logger

	closers []func() error
}

// AppOption adjusts how NewApp wires the engine.
type AppOption func(*appSettings)

type appSettings struct {
	providers map[domain.Provider]ports.CapabilityProvider
	engine    []clara.Option
}

// WithProviderOverride uses p for kind instead of the configured endpoint.
func WithProviderOverride(kind domain.Provider, p ports.CapabilityProvider) AppOption {
	return func(s *appSettings) { s.providers[kind] = p }
}

// WithEngineOptions appends options to the engine construction.
func WithEngineOptions(opts ...clara.Option) AppOption {
	return func(s *appSettings) { s.engine = append(s.engine, opts...) }
}

// NewApp builds the engine described by cfg. On error every resource opened
// so far is released.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...AppOption) (*App, error) {
	settings := &appSettings{providers: make(map[domain.Provider]ports.CapabilityProvider)}
	for _, opt := range opts {
		opt(settings)
	}

	app := &App{Logger: logger}
	if err := app.wire(ctx, cfg, settings); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, cfg *config.Config, settings *appSettings) error {
	logger := a.Logger
	store, locker, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	mws, err := securityMiddlewares(cfg)
	if err != nil {
		return err
	}
	a.Store = middleware.Chain(store, mws...)

	providers, err := a.openProviders(ctx, cfg, settings.providers)
	if err != nil {
		return err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(a.Registry)
	a.Streams = httpadapter.NewStreamManager(logger)

	engineOpts := []clara.Option{
		clara.WithLogger(logger),
		clara.WithStore(a.Store),
		clara.WithCallTimeout(cfg.Engine.CallTimeout),
		clara.WithLockTTL(cfg.Store.LockTTL),
		clara.WithLifecycleHooks(domain.CombineHooks(
			observability.LoggingHooks(logger),
			metrics.Hooks(),
			a.Streams.Hooks(),
		)),
	}
	for kind, p := range providers {
		engineOpts = append(engineOpts, clara.WithProvider(kind, p))
	}
	if locker != nil {
		engineOpts = append(engineOpts, clara.WithLocker(locker))
	}
	if cfg.Engine.HaltDegraded {
		engineOpts = append(engineOpts, clara.WithDegradedPolicy(clara.HaltDegraded))
	}
	if cfg.Engine.Planner == "provider" {
		engineOpts = append(engineOpts, clara.WithPlanner(
			planner.NewProvider(providers[domain.ProviderCommon], planner.WithLogger(logger)),
		))
	}
	if cfg.Engine.Catalog != "" {
		catalog, err := pipeline.Load(cfg.Engine.Catalog)
		if err != nil {
			return fmt.Errorf("error loading stage catalog: %w", err)
		}
		engineOpts = append(engineOpts, clara.WithCatalog(catalog))
	}
	engineOpts = append(engineOpts, settings.engine...)

	a.Engine, err = clara.New(engineOpts...)
	if err != nil {
		return fmt.Errorf("error initializing engine: %w", err)
	}
	return nil
}

// Close releases provider connections and the store, in reverse order of opening.
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

func (a *App) openStore(ctx context.Context, cfg *config.Config) (ports.StateStore, ports.DistributedLocker, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.NewStore(), nil, nil
	case config.BackendFile:
		return file.New(cfg.Store.Dir), nil, nil
	case config.BackendRedis:
		rc := cfg.Store.Redis
		opts := []redis.Option{redis.WithPrefix(rc.Prefix)}
		if rc.TTL > 0 {
			opts = append(opts, redis.WithTTL(rc.TTL))
		}
		store := redis.New(rc.Addr, rc.Password, rc.DB, opts...)
		a.closers = append(a.closers, store.Close)
		if err := store.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("redis at %s: %w", rc.Addr, err)
		}
		return store, redis.NewLocker(store.Client(), rc.Prefix), nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func securityMiddlewares(cfg *config.Config) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	sec := cfg.Security
	if sec.PII {
		patterns := sec.PIIPatterns
		if len(patterns) == 0 {
			patterns = middleware.DefaultPIIPatterns
		}
		pii, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern: %w", err)
		}
		mws = append(mws, pii)
	}
	if sec.EncryptionKey != "" {
		active, err := config.DecodeKey(sec.EncryptionKey)
		if err != nil {
			return nil, err
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for _, k := range sec.FallbackKeys {
			key, err := config.DecodeKey(k)
			if err != nil {
				return nil, err
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}

func (a *App) openProviders(ctx context.Context, cfg *config.Config, overrides map[domain.Provider]ports.CapabilityProvider) (map[domain.Provider]ports.CapabilityProvider, error) {
	endpoints := map[domain.Provider]string{
		domain.ProviderAtlas:  cfg.Providers.Atlas,
		domain.ProviderCommon: cfg.Providers.Common,
	}
	providers := make(map[domain.Provider]ports.CapabilityProvider, len(endpoints))
	for kind, endpoint := range endpoints {
		if p, ok := overrides[kind]; ok {
			providers[kind] = p
			continue
		}
		if endpoint == config.Simulated {
			providers[kind] = simulatedProvider(kind, cfg)
			continue
		}

		a.Logger.Info("connecting MCP provider", "provider", kind, "endpoint", endpoint)
		p, err := mcpadapter.Dial(ctx, kind, endpoint, mcpadapter.WithProviderLogger(a.Logger))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		providers[kind] = p
	}
	return providers, nil
}

func simulatedProvider(kind domain.Provider, cfg *config.Config) *simulated.Provider {
	if kind == domain.ProviderAtlas {
		return simulated.NewAtlas()
	}
	var opts []simulated.Option
	if cfg.Providers.Score > 0 {
		opts = append(opts, simulated.WithScore(cfg.Providers.Score))
	}
	return simulated.NewCommon(opts...)
}
