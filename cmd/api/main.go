package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mfujino/sellbridge/internal/adapters/api"
	"github.com/mfujino/sellbridge/internal/adapters/database"
	adapterevents "github.com/mfujino/sellbridge/internal/adapters/events"
	"github.com/mfujino/sellbridge/internal/adapters/marketplace"
	"github.com/mfujino/sellbridge/internal/config"
	"github.com/mfujino/sellbridge/internal/domain/listing"
	"github.com/mfujino/sellbridge/pkg/actionlock"
	pkgdb "github.com/mfujino/sellbridge/pkg/database"
	pkgevents "github.com/mfujino/sellbridge/pkg/events"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx := context.Background()

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

	// 3. Action lock. Redis makes the single permit span the API and the
	// worker; without Redis the permit is process-local only.
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

	// 4. Initialize Repositories (Infrastructure Layer)
	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	listingRepo := database.NewPostgresListingRepository(pool)
	sourceItemRepo := database.NewPostgresSourceItemRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	// 5. Marketplace collaborators
	offers := marketplace.NewOfferClient(cfg.OfferAPIURL, cfg.OfferAPIToken)
	sources := map[listing.SourceVariant]listing.SourceService{
		listing.VariantAuction:    marketplace.NewAuctionClient(cfg.AuctionPageURL, cfg.AuctionAgentURL),
		listing.VariantFreemarket: marketplace.NewFreemarketClient(cfg.FreemarketAPIURL, cfg.FreemarketAPIKey),
	}
	rates := cfg.RateProvider()

	// 6. Initialize Services (Domain Layer)
	dispatcher := listing.NewDispatcher(txManager, listingRepo, sourceItemRepo, outboxRepo, offers, sources, rates, lock, logger)
	reconciler := listing.NewReconciler(txManager, listingRepo, sourceItemRepo, offers, sources, lock, logger)

	// 7. Start Outbox Relay
	rabbitPublisher, err := adapterevents.NewRabbitMQPublisher(amqpConn)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer rabbitPublisher.Close()

	outboxRelay := pkgevents.NewOutboxRelay(
		outboxRepo,
		rabbitPublisher,
		txManager,
		10,            // batch size
		1*time.Second, // interval
		adapterevents.ResaleExchange,
		logger,
	)

	// Run relay in background
	go func() {
		logger.Info("Starting Outbox Relay...")
		if err := outboxRelay.Run(ctx); err != nil {
			logger.Error("Outbox Relay stopped", "error", err)
		}
	}()

	// 8. Start Server
	handler := api.NewHandler(dispatcher, reconciler, rates, logger)

	addr := cfg.ListenAddr
	logger.Info("Starting resale API", "addr", addr)

	// Use h2c for HTTP/2 without TLS (common for internal services / local dev)
	srv := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(handler.Routes(), &http2.Server{}),
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
