package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/breaker"
	"github.com/aussiebroadwan/policygate/internal/gateway/cache"
	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	httpapi "github.com/aussiebroadwan/policygate/internal/gateway/http"
	"github.com/aussiebroadwan/policygate/internal/gateway/metrics"
	"github.com/aussiebroadwan/policygate/internal/gateway/service"
	"github.com/aussiebroadwan/policygate/internal/gateway/store/drivers/memory"
	"github.com/aussiebroadwan/policygate/internal/gateway/upstream"
	"github.com/aussiebroadwan/policygate/pkg/jwtx"
	"github.com/aussiebroadwan/policygate/pkg/slogx"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application owns every long-lived component of the gateway.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store      *memory.Store
	keyManager *jwtx.KeyManager
	metrics    *metrics.Metrics
	breakers   *breaker.Registry

	policyLists *cache.Cache[[]domain.Policy]
	policies    *cache.Cache[domain.Policy]
	conditions  *cache.Cache[[]string]

	credentialService   *service.CredentialService
	resourceService     *service.ResourceService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New validates cfg and builds the application. Nothing is started until Run.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "policygate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	keyManager, err := InitAuthKeys(cfg, app.logger, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager
	app.store = memory.NewStore(memory.Options{})

	if err := app.initServices(); err != nil {
		app.closeResources()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the fully wired router, e.g. for httptest.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("policygate starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"upstream", app.cfg.UpstreamBaseURL,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		app.closeResources()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, then stops background work.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down policygate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeResources(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("policygate stopped")
	return nil
}

// Close releases resources for an application that was never Run.
func (app *Application) Close() error {
	return app.closeResources()
}

func (app *Application) closeResources() error {
	if app.policyLists != nil {
		app.policyLists.Close()
		app.policies.Close()
		app.conditions.Close()
	}
	return app.store.Close()
}

func (app *Application) initServices() error {
	app.breakers = breaker.NewRegistry(breaker.Settings{
		FailureThreshold: app.cfg.BreakerFailureThreshold,
		Window:           app.cfg.BreakerWindow,
		Cooldown:         app.cfg.BreakerCooldown,
		HalfOpenTrials:   app.cfg.BreakerHalfOpenTrials,
	}, app.logger, app.metrics)

	client, err := upstream.NewClient(app.cfg.UpstreamBaseURL, &http.Client{}, app.cfg.UpstreamTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize upstream client: %w", err)
	}
	gw := upstream.NewGateway(client, app.breakers.Get(app.cfg.UpstreamName), app.metrics)

	cacheOpts := func(name string) cache.Options {
		return cache.Options{
			Name:     name,
			TTL:      app.cfg.CacheTTL,
			Capacity: app.cfg.CacheCapacity,
			Recorder: app.metrics,
		}
	}
	app.policyLists = cache.New[[]domain.Policy](cacheOpts("policy_lists"))
	app.policies = cache.New[domain.Policy](cacheOpts("policies"))
	app.conditions = cache.New[[]string](cacheOpts("conditions"))

	app.resourceService = &service.ResourceService{
		Upstream:   gw,
		Guard:      &service.OwnershipGuard{Upstream: gw, PolicyLists: app.policyLists},
		Policies:   app.policies,
		Conditions: app.conditions,
	}

	app.credentialService = &service.CredentialService{
		KeyManager: app.keyManager,
		Store:      app.store,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
		Recorder:   app.metrics,
		// A fresh login re-reads the user's policies.
		OnLogin: app.resourceService.InvalidateOwner,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.store,
		[]service.Sweeper{app.policyLists, app.policies, app.conditions},
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager,
		BuildVersion,
		app.store,
		app.breakers,
		app.metrics,
		app.logger,
	)

	router.CredentialService = app.credentialService
	router.ResourceService = app.resourceService
	// Validate has already rejected a malformed list.
	router.TrustedProxies, _ = app.cfg.TrustedProxyPrefixes()
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
