package listing

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mfujino/sellbridge/internal/domain/pricing"
	"github.com/mfujino/sellbridge/pkg/events"
)

// Repository defines the interface for listing persistence
type Repository interface {
	// Create inserts a new listing within a transaction
	Create(ctx context.Context, tx pgx.Tx, l *Listing) error

	// GetBySKU retrieves a listing by SKU (non-transactional read)
	GetBySKU(ctx context.Context, sku string) (*Listing, error)

	// GetBySKUForUpdate retrieves a listing by SKU and locks the row.
	// Must be called within a transaction.
	GetBySKUForUpdate(ctx context.Context, tx pgx.Tx, sku string) (*Listing, error)

	// UpdateStatus updates a listing's status within a transaction
	UpdateStatus(ctx context.Context, tx pgx.Tx, sku string, status Status) error

	// UpdateRemoteState overwrites status, price and metrics with the values
	// reported by the target marketplace
	UpdateRemoteState(ctx context.Context, tx pgx.Tx, sku string, status Status, price, viewCount, watchCount int64) error

	// ListByFamily retrieves all listings for one marketplace family
	ListByFamily(ctx context.Context, family string) ([]*Listing, error)
}

// SourceItemRepository defines the interface for source item persistence
type SourceItemRepository interface {
	Create(ctx context.Context, tx pgx.Tx, item *SourceItem) error
	GetByID(ctx context.Context, sourceID string) (*SourceItem, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, sourceID string) (*SourceItem, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, sourceID string, status SourceItemStatus) error

	// UpdateRemoteState overwrites status, price and auction end time with
	// the values reported by the sourcing marketplace. A nil endAt keeps the
	// stored value.
	UpdateRemoteState(ctx context.Context, tx pgx.Tx, sourceID string, status SourceItemStatus, price int64, endAt *time.Time) error

	// ListByVariant retrieves all source items of one sourcing variant
	ListByVariant(ctx context.Context, variant SourceVariant) ([]*SourceItem, error)
}

// OutboxRepository stores lifecycle events in the same transaction as the
// state change they describe
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}

// RemoteOffer is the target marketplace's view of one listing
type RemoteOffer struct {
	OfferID    string
	SKU        string
	Status     Status
	Price      int64 // cents
	ViewCount  int64
	WatchCount int64
}

// OfferService is the target-marketplace collaborator
type OfferService interface {
	Withdraw(ctx context.Context, offerID string) error
	Publish(ctx context.Context, offerID string) error
	GetOffer(ctx context.Context, offerID string) (*RemoteOffer, error)

	// ListOffers returns the full authoritative set of offers for one
	// marketplace family, for bulk reconciliation
	ListOffers(ctx context.Context, family string) ([]*RemoteOffer, error)
}

// RemoteSourceItem is the sourcing marketplace's view of one item
type RemoteSourceItem struct {
	SourceID string
	Status   SourceItemStatus
	Price    int64 // yen
	EndAt    *time.Time
}

// SourceService is the sourcing-marketplace collaborator (one implementation
// per variant)
type SourceService interface {
	GetItem(ctx context.Context, sourceID string) (*RemoteSourceItem, error)
	ListItems(ctx context.Context, sourceIDs []string) ([]*RemoteSourceItem, error)

	// Purchase buys the item on the sourcing marketplace
	Purchase(ctx context.Context, sourceID string) error

	// RegisterSale notifies the sourcing side that the target-marketplace
	// sale completed
	RegisterSale(ctx context.Context, sku string) error
}

// RateProvider returns the current fee/tax/exchange snapshot. The core
// treats each snapshot as point-in-time; it is never cached across
// calculations.
type RateProvider interface {
	Rates(ctx context.Context) (pricing.RateConfig, error)
}
