// Command graphbuild runs the batch identity graph pipeline: seed from order
// history, seed from ticketing, merge shared-email duplicates, and backfill
// PII hash links. It is safe to rerun; every pass is idempotent.
package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/cache"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/graph"
	"github.com/spec-kit/identity-service/internal/identity"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/persistence"
	"github.com/spec-kit/identity-service/internal/pii"
	"github.com/spec-kit/identity-service/internal/repository"
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

	ctx := context.Background()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if pool == nil {
		logger.Fatal("graph build requires POSTGRES_DSN")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	store := graph.NewPostgresStore(pool)
	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartAuditWorker(dispatcher, repository.NewAuditLogRepository(pool), logger)

	normalizer := pii.NewNormalizer(cfg.Identity.DotInsensitiveDomains)
	hasher := pii.NewHasher(cfg.Identity.HashSalt, normalizer)
	profileCache := cache.NewProfileCache(redis.Client, cfg.Identity.ProfileCacheTTL(), logger)

	merger := identity.NewMergeResolver(store, profileCache, dispatcher, logger)
	builder := identity.NewGraphBuilder(
		store,
		source.NewPostgresOrderHistory(pool),
		source.NewPostgresTicketing(pool),
		hasher,
		merger,
		dispatcher,
		logger,
		cfg.Identity.SeedBatchSize,
		cfg.Identity.PlaceholderEmailDomain,
	)

	report, err := builder.Run(ctx)
	if err != nil {
		logger.Fatal("graph build failed", zap.Error(err))
	}

	backfill := identity.NewHashBackfill(store, hasher, logger, cfg.Identity.SeedBatchSize, cfg.Identity.PlaceholderEmailDomain)
	backfillReport, err := backfill.Run(ctx)
	if err != nil {
		logger.Fatal("hash backfill failed", zap.Error(err))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		logger.Fatal("stats query failed", zap.Error(err))
	}

	logger.Info("graph build finished",
		zap.Int("ecommerce_created", report.EcommerceCreated),
		zap.Int("ticketing_attached", report.TicketingAttached),
		zap.Int("ticketing_created", report.TicketingCreated),
		zap.Int("merged_identities", report.Merge.MergedIdentities+report.ConflictsMerged),
		zap.Int("hashes_added", backfillReport.HashesAdded),
		zap.Int64("active_identities", stats.ActiveIdentities),
		zap.Int64("active_links", stats.ActiveLinks))
}
