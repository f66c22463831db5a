package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mfujino/sellbridge/internal/adapters/database"
	pkgdb "github.com/mfujino/sellbridge/pkg/database"
	pkgevents "github.com/mfujino/sellbridge/pkg/events"
)

// LifecycleProducer relays lifecycle events from the outbox to RabbitMQ
type LifecycleProducer struct {
	relay     *pkgevents.OutboxRelay
	publisher *RabbitMQPublisher
}

// NewLifecycleProducer creates a new producer
func NewLifecycleProducer(pool *pgxpool.Pool, conn *amqp.Connection, logger *slog.Logger) (*LifecycleProducer, error) {
	publisher, err := NewRabbitMQPublisher(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	relay := pkgevents.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		10,                   // Batch size
		500*time.Millisecond, // Polling interval
		ResaleExchange,
		logger,
	)

	return &LifecycleProducer{
		relay:     relay,
		publisher: publisher,
	}, nil
}

// Run starts the relay loop
func (p *LifecycleProducer) Run(ctx context.Context) error {
	return p.relay.Run(ctx)
}

// Close closes the publisher channel
func (p *LifecycleProducer) Close() error {
	return p.publisher.Close()
}
