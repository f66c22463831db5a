package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/mfujino/sellbridge/internal/adapters/database"
	adapterevents "github.com/mfujino/sellbridge/internal/adapters/events"
	"github.com/mfujino/sellbridge/internal/adapters/marketplace"
	"github.com/mfujino/sellbridge/internal/config"
	"github.com/mfujino/sellbridge/internal/domain/listing"
	"github.com/mfujino/sellbridge/pkg/actionlock"
	pkgdb "github.com/mfujino/sellbridge/pkg/database"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down worker...")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// 1. Initialize Postgres Connection Pool
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Connect to RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ Connected")

	// 3. Action lock, shared with the API through Redis
	var lock actionlock.Lock
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Redis connection failed", "error", err)
			os.Exit(1)
		}
		lock = actionlock.NewRedisLock(rdb, "resale:action-lock", 30*time.Second)
		logger.Info("Redis Connected")
	} else {
		lock = actionlock.NewSemaphoreLock()
		logger.Warn("REDIS_URL not set, action lock is process-local")
	}

	// 4. Outbox relay
	producer, err := adapterevents.NewLifecycleProducer(pool, amqpConn, logger)
	if err != nil {
		logger.Error("Failed to create producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	go func() {
		logger.Info("Starting Lifecycle Events Producer...")
		if runErr := producer.Run(ctx); runErr != nil {
			logger.Error("Producer failed", "error", runErr)
		}
	}()

	// 5. Periodic reconciliation
	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	listingRepo := database.NewPostgresListingRepository(pool)
	sourceItemRepo := database.NewPostgresSourceItemRepository(pool)

	offers := marketplace.NewOfferClient(cfg.OfferAPIURL, cfg.OfferAPIToken)
	sources := map[listing.SourceVariant]listing.SourceService{
		listing.VariantAuction:    marketplace.NewAuctionClient(cfg.AuctionPageURL, cfg.AuctionAgentURL),
		listing.VariantFreemarket: marketplace.NewFreemarketClient(cfg.FreemarketAPIURL, cfg.FreemarketAPIKey),
	}

	reconciler := listing.NewReconciler(txManager, listingRepo, sourceItemRepo, offers, sources, lock, logger)

	variants := []listing.SourceVariant{listing.VariantAuction, listing.VariantFreemarket}

	logger.Info("Starting reconcile loop", "interval", cfg.ReconcileInterval, "family", cfg.Family)
	if runErr := reconciler.Run(ctx, cfg.Family, variants, cfg.ReconcileInterval); runErr != nil {
		logger.Error("Reconcile loop failed", "error", runErr)
	}

	logger.Info("Worker stopped")
}
