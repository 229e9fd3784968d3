package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-core/internal/api/http"
	"github.com/spec-kit/helpdesk-core/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-core/internal/api/ws"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/cache"
	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/observability"
	"github.com/spec-kit/helpdesk-core/internal/persistence"
	"github.com/spec-kit/helpdesk-core/internal/presence"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/revocation"
	"github.com/spec-kit/helpdesk-core/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	metrics := observability.NewMetrics()

	caches := cache.NewCaches(cfg.Cache, metrics)
	defer caches.Shutdown()

	revocations := revocation.NewRegistry(metrics)
	defer revocations.Shutdown()

	sweepTargets := append(caches.Sweepables(), revocations)
	sweeper := cache.NewSweeper(cfg.Cache.SweepInterval(), logger, sweepTargets...)
	sweeper.Start()
	defer sweeper.Shutdown()

	registry := presence.NewRegistry(cfg.Presence.HeartbeatInterval(), logger, metrics)
	registry.Start()
	defer registry.Shutdown()

	pool := pg.PoolHandle()
	principalRepo := repository.NewPrincipalRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	toggleRepo := repository.NewToggleRequestRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		PrincipalRepo: principalRepo,
		Tokens:        tokens,
		Revocations:   revocations,
		Caches:        caches,
		Logger:        logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		PrincipalRepo: principalRepo,
		TicketRepo:    ticketRepo,
		ToggleRepo:    toggleRepo,
		AuditRepo:     auditRepo,
		Caches:        caches,
		Logger:        logger,
		Metrics:       metrics,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:       ticketRepo,
		PrincipalRepo:    principalRepo,
		NotificationRepo: notificationRepo,
		Assignment:       assignmentService,
		Pusher:           registry,
		Caches:           caches,
		Logger:           logger,
	})

	authMiddleware := auth.NewMiddleware(tokens, revocations, caches, principalRepo)
	wsHandler := ws.NewHandler(registry, authMiddleware, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Assignment:     handlers.NewAssignmentHandler(assignmentService, caches),
		Notifications:  handlers.NewNotificationsHandler(notificationRepo),
		AuthMiddleware: authMiddleware,
		MetricsHandler: metrics.Handler(),
		WS:             wsHandler.Upgrade(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
