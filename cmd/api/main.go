package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/identity-service/internal/api/http"
	"github.com/spec-kit/identity-service/internal/api/http/handlers"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/cache"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/graph"
	"github.com/spec-kit/identity-service/internal/identity"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/persistence"
	"github.com/spec-kit/identity-service/internal/pii"
	"github.com/spec-kit/identity-service/internal/repository"
	"github.com/spec-kit/identity-service/internal/service"
	"github.com/spec-kit/identity-service/internal/source"
	"github.com/spec-kit/identity-service/internal/worker"
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

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	if pool == nil {
		// Agent auth and the identity graph both live in Postgres; without it
		// every guarded route would fail anyway.
		logger.Fatal("identity API requires POSTGRES_DSN")
	}
	store := graph.NewPostgresStore(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	normalizer := pii.NewNormalizer(cfg.Identity.DotInsensitiveDomains)
	hasher := pii.NewHasher(cfg.Identity.HashSalt, normalizer)
	profileCache := cache.NewProfileCache(redis.Client, cfg.Identity.ProfileCacheTTL(), logger)

	resolver := identity.NewResolver(store, hasher, dispatcher, logger, metrics)
	assembler := identity.NewProfileAssembler(store, resolver, source.NewPostgresOrderHistory(pool), profileCache, logger, cfg.Identity.RecentOrdersLimit)

	agentRepo := repository.NewAgentRepository(pool)
	auditRepo := repository.NewAuditLogRepository(pool)
	agentService := service.NewAgentService(*cfg, service.AgentDependencies{AgentRepo: agentRepo})
	authMiddleware := auth.NewAuthMiddleware(agentService.TokenManager(), agentRepo)

	worker.StartAuditWorker(dispatcher, auditRepo, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	agentsHandler := handlers.NewAgentsHandler(agentService)
	identityHandler := handlers.NewIdentityHandler(resolver, assembler, store, auditRepo, dispatcher, metrics)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Agents:         agentsHandler,
		Identity:       identityHandler,
		AuthMiddleware: authMiddleware,
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
