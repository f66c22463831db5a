package listing

import (
	"time"

	"github.com/google/uuid"
)

// SourceVariant distinguishes the two sourcing-marketplace styles. The
// vocabularies are shared; the relist precondition differs per variant.
type SourceVariant string

const (
	VariantAuction    SourceVariant = "auction"
	VariantFreemarket SourceVariant = "freemarket"
)

// IsValid checks if the variant is one of the known sourcing styles
func (v SourceVariant) IsValid() bool {
	switch v {
	case VariantAuction, VariantFreemarket:
		return true
	default:
		return false
	}
}

// SourceItemStatus is the purchase status of a sourcing-marketplace item
type SourceItemStatus string

const (
	SourceStatusPurchasable SourceItemStatus = "purchasable"
	SourceStatusPurchased   SourceItemStatus = "purchased"

	// SourceStatusUnpurchasable is terminal: the listing ended or was
	// removed upstream without a purchase
	SourceStatusUnpurchasable SourceItemStatus = "unpurchasable"
)

// Status is the lifecycle status of a target-marketplace listing
type Status string

const (
	StatusActive    Status = "active"
	StatusWithdrawn Status = "withdrawn"
	StatusSold      Status = "sold"
	StatusCompleted Status = "completed"

	// StatusFailed is terminal: listing creation or update was rejected by
	// the target marketplace
	StatusFailed Status = "failed"
)

// SourceItem is a listing on a sourcing marketplace registered for resale.
// Never deleted; it only transitions to unpurchasable.
type SourceItem struct {
	SourceID     string
	URL          string
	Variant      SourceVariant
	Name         string
	Price        int64 // current/buy-now price, yen
	ShippingCost int64 // yen
	EndAt        *time.Time // auction variant only, nil for freemarket
	Status       SourceItemStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CostBasis is the item price plus its shipping cost, in yen
func (i *SourceItem) CostBasis() int64 {
	return i.Price + i.ShippingCost
}

// Listing is the corresponding offer on the target marketplace. The SKU
// joins it to exactly one SourceItem.
type Listing struct {
	SKU      string
	OfferID  string
	SourceID string
	Family   string // target marketplace family, e.g. "ebay"

	Price         int64 // target currency, cents
	ShippingPrice int64 // target currency, cents
	Profit        int64 // final profit, cents
	ProfitSource  int64 // final profit, yen

	// Advisory metrics, overwritten by reconciliation
	ViewCount  int64
	WatchCount int64

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Action is a named lifecycle operation
type Action string

const (
	ActionWithdraw Action = "withdraw"
	ActionRelist   Action = "relist"
	ActionSync     Action = "sync"
	ActionPurchase Action = "purchase"
	ActionSales    Action = "sales"
)

// IsValid checks if the action is one of the dispatchable kinds
func (a Action) IsValid() bool {
	switch a {
	case ActionWithdraw, ActionRelist, ActionSync, ActionPurchase, ActionSales:
		return true
	default:
		return false
	}
}

// ActionRequest is an in-flight lifecycle operation. It is never persisted:
// created when a user triggers an action, consumed by the dispatcher,
// discarded on completion.
type ActionRequest struct {
	ID       uuid.UUID
	Action   Action
	SKU      string
	IssuedAt time.Time
}

// NewActionRequest builds a request for one lifecycle action on one SKU
func NewActionRequest(action Action, sku string) ActionRequest {
	return ActionRequest{
		ID:       uuid.New(),
		Action:   action,
		SKU:      sku,
		IssuedAt: time.Now(),
	}
}

// Lifecycle event types written to the outbox on successful actions
const (
	EventTypeListingRegistered   = "listing.registered"
	EventTypeListingWithdrawn    = "listing.withdrawn"
	EventTypeListingRelisted     = "listing.relisted"
	EventTypeListingCompleted    = "listing.completed"
	EventTypeSourceItemPurchased = "sourceitem.purchased"
)

// LifecycleEvent is the JSON payload published for a lifecycle change
type LifecycleEvent struct {
	SKU           string           `json:"sku"`
	Action        Action           `json:"action"`
	ListingStatus Status           `json:"listing_status"`
	SourceStatus  SourceItemStatus `json:"source_status"`
	OccurredAt    time.Time        `json:"occurred_at"`
}
