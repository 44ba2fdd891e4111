// Package app assembles stores, services and transports from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-workflow/internal/api/http"
	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/persistence"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/repository/sqlite"
	"github.com/spec-kit/ticket-workflow/internal/service"
	"github.com/spec-kit/ticket-workflow/internal/sla"
)

// Services is the full set of workflow services over one store.
type Services struct {
	Notifications *service.NotificationService
	Status        *service.StatusService
	Assignment    *service.AssignmentService
	Reopen        *service.ReopenService
	SLA           *service.SLAService
}

// NewServices wires the services. now may be nil.
func NewServices(store repository.Store, workflow config.WorkflowConfig, policy sla.Policy, dispatcher events.Dispatcher, logger *zap.Logger, now func() time.Time) *Services {
	repos := store.Repos()
	notifications := service.NewNotificationService(service.NotificationDependencies{
		Notifications: repos.Notifications,
		Users:         repos.Users,
		Dispatcher:    dispatcher,
		Timeout:       workflow.NotificationTimeout,
		Logger:        logger,
		Now:           now,
	})
	deps := service.WorkflowDependencies{
		Store:      store,
		Notifier:   notifications,
		Dispatcher: dispatcher,
		Tracker:    sla.NewTracker(policy),
		Workflow:   workflow,
		Logger:     logger,
		Now:        now,
	}
	status := service.NewStatusService(deps)
	return &Services{
		Notifications: notifications,
		Status:        status,
		Assignment:    service.NewAssignmentService(deps, status),
		Reopen:        service.NewReopenService(deps, status),
		SLA:           service.NewSLAService(deps),
	}
}

// Runtime owns every long-lived resource of a process.
type Runtime struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      repository.Store
	Redis      *persistence.Redis
	Dispatcher events.Dispatcher
	Services   *Services
	Metrics    *observability.Metrics
	Tokens     *auth.TokenManager
}

// Bootstrap opens the configured store, attaches the optional Redis event
// publisher and builds the services.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	policy, err := sla.LoadPolicy(cfg.SLA.PolicyFile)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Dispatcher: events.NewInMemoryDispatcher(logger),
		Metrics:    observability.NewMetrics(),
		Tokens:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Workflow.SessionTimeout()),
	}
	if cfg.Redis.Enabled {
		rt.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		events.NewRedisPublisher(rt.Redis.Client, cfg.Redis.EventsChannel, logger).Attach(rt.Dispatcher)
	}
	rt.Services = NewServices(store, cfg.Workflow, policy, rt.Dispatcher, logger, nil)
	return rt, nil
}

// OpenStore opens the store selected by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := persistence.OpenPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresStore(pool), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", zap.String("path", cfg.Store.SQLitePath))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// HTTP builds the fiber application.
func (rt *Runtime) HTTP() *fiber.App {
	deps := map[string]handlers.Pinger{"store": rt.Store}
	if rt.Redis != nil {
		deps["redis"] = rt.Redis
	}
	return NewHTTPApp(HTTPOptions{
		Name:           rt.Config.App.Name,
		Version:        rt.Config.App.Version,
		RequestTimeout: rt.Config.App.RequestTimeout(),
		Services:       rt.Services,
		Users:          rt.Store.Repos().Users,
		Tokens:         rt.Tokens,
		Health:         deps,
		Metrics:        rt.Metrics,
		Logger:         rt.Logger,
	})
}

// Close releases the store and the Redis client.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		rt.Redis.Close()
	}
	if err := rt.Store.Close(); err != nil {
		rt.Logger.Warn("closing store", zap.Error(err))
	}
}

// HTTPOptions configures NewHTTPApp.
type HTTPOptions struct {
	Name           string
	Version        string
	RequestTimeout time.Duration
	Services       *Services
	Users          repository.UserRepository
	Tokens         *auth.TokenManager
	Health         map[string]handlers.Pinger
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// NewHTTPApp registers middleware and routes on a new fiber app.
func NewHTTPApp(opts HTTPOptions) *fiber.App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               opts.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, opts.Logger, opts.Metrics, opts.RequestTimeout)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(opts.Name, opts.Version, opts.Health, opts.Metrics),
		Tickets:        handlers.NewTicketsHandler(opts.Services.Status, opts.Services.SLA),
		Assignment:     handlers.NewAssignmentHandler(opts.Services.Assignment),
		Reopen:         handlers.NewReopenHandler(opts.Services.Reopen, opts.Services.Status),
		Notifications:  handlers.NewNotificationsHandler(opts.Services.Notifications),
		AuthMiddleware: auth.NewAuthMiddleware(opts.Tokens, opts.Users),
	})
	return app
}
