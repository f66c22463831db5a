package listing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mfujino/sellbridge/internal/domain/pricing"
	"github.com/mfujino/sellbridge/pkg/actionlock"
	"github.com/mfujino/sellbridge/pkg/database"
	"github.com/mfujino/sellbridge/pkg/events"
)

// Lookup errors
var (
	ErrListingNotFound    = fmt.Errorf("listing not found")
	ErrSourceItemNotFound = fmt.Errorf("source item not found")
	ErrUnknownAction      = fmt.Errorf("unknown action kind")
	ErrUnknownVariant     = fmt.Errorf("unknown source variant")
)

// RemoteError carries an upstream rejection or timeout. Local state is left
// unchanged; the caller is expected to re-run sync before retrying, because
// the remote call may still have completed after a client-side timeout.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Dispatcher executes one named lifecycle action at a time: admit through
// the action lock, validate the transition, call the external collaborator,
// and only then commit the local status change together with an outbox
// event. A failed remote call never mutates local state.
type Dispatcher struct {
	txManager   database.TransactionManager
	listings    Repository
	sourceItems SourceItemRepository
	outbox      OutboxRepository
	offers      OfferService
	sources     map[SourceVariant]SourceService
	rates       RateProvider
	lock        actionlock.Lock
	logger      *slog.Logger
}

// NewDispatcher creates a new action dispatcher
func NewDispatcher(
	txManager database.TransactionManager,
	listings Repository,
	sourceItems SourceItemRepository,
	outbox OutboxRepository,
	offers OfferService,
	sources map[SourceVariant]SourceService,
	rates RateProvider,
	lock actionlock.Lock,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		txManager:   txManager,
		listings:    listings,
		sourceItems: sourceItems,
		outbox:      outbox,
		offers:      offers,
		sources:     sources,
		rates:       rates,
		lock:        lock,
		logger:      logger,
	}
}

// Dispatch runs one lifecycle action against the listing identified by the
// request's SKU and returns the updated listing. It returns
// actionlock.ErrBusy when another action is in flight, *TransitionError when
// the request is illegal from the current state (no remote call is made),
// and *RemoteError when the external collaborator rejects or times out (no
// local change survives).
func (d *Dispatcher) Dispatch(ctx context.Context, req ActionRequest) (*Listing, error) {
	if !req.Action.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	release, err := d.lock.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = release(ctx)
	}()

	tx, err := d.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	lst, err := d.listings.GetBySKUForUpdate(ctx, tx, req.SKU)
	if err != nil {
		return nil, err
	}
	item, err := d.sourceItems.GetByIDForUpdate(ctx, tx, lst.SourceID)
	if err != nil {
		return nil, err
	}

	// Validation happens before any remote call: an illegal request has no
	// partial side effects.
	next, err := Validate(item.Variant, lst.Status, item.Status, req.Action)
	if err != nil {
		return nil, err
	}

	if req.Action == ActionSync {
		return d.syncOne(ctx, tx, lst, item)
	}

	if err := d.callRemote(ctx, req.Action, lst, item); err != nil {
		return nil, err
	}

	if next.Listing != lst.Status {
		if err := d.listings.UpdateStatus(ctx, tx, lst.SKU, next.Listing); err != nil {
			return nil, fmt.Errorf("failed to update listing status: %w", err)
		}
		lst.Status = next.Listing
	}
	if next.Source != item.Status {
		if err := d.sourceItems.UpdateStatus(ctx, tx, item.SourceID, next.Source); err != nil {
			return nil, fmt.Errorf("failed to update source item status: %w", err)
		}
		item.Status = next.Source
	}

	if err := d.saveEvent(ctx, tx, req.Action, lst, item); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.logger.Info("lifecycle action applied",
		"action", req.Action, "sku", req.SKU,
		"listing_status", lst.Status, "source_status", item.Status)

	return lst, nil
}

// callRemote invokes the collaborator appropriate to the action. Failures
// are wrapped in *RemoteError and abort the transaction.
func (d *Dispatcher) callRemote(ctx context.Context, action Action, lst *Listing, item *SourceItem) error {
	switch action {
	case ActionWithdraw:
		if err := d.offers.Withdraw(ctx, lst.OfferID); err != nil {
			return &RemoteError{Op: "withdraw", Err: err}
		}
	case ActionRelist:
		if err := d.offers.Publish(ctx, lst.OfferID); err != nil {
			return &RemoteError{Op: "publish", Err: err}
		}
	case ActionPurchase:
		src, err := d.sourceFor(item.Variant)
		if err != nil {
			return err
		}
		if err := src.Purchase(ctx, item.SourceID); err != nil {
			return &RemoteError{Op: "purchase", Err: err}
		}
	case ActionSales:
		src, err := d.sourceFor(item.Variant)
		if err != nil {
			return err
		}
		if err := src.RegisterSale(ctx, lst.SKU); err != nil {
			return &RemoteError{Op: "register sale", Err: err}
		}
	}
	return nil
}

// syncOne is the single-SKU read-through refresh: both the offer and the
// source item are re-read from their marketplaces and local state is
// overwritten with the remote truth.
func (d *Dispatcher) syncOne(ctx context.Context, tx pgx.Tx, lst *Listing, item *SourceItem) (*Listing, error) {
	offer, err := d.offers.GetOffer(ctx, lst.OfferID)
	if err != nil {
		return nil, &RemoteError{Op: "get offer", Err: err}
	}

	src, err := d.sourceFor(item.Variant)
	if err != nil {
		return nil, err
	}
	remoteItem, err := src.GetItem(ctx, item.SourceID)
	if err != nil {
		return nil, &RemoteError{Op: "get item", Err: err}
	}

	if err := d.listings.UpdateRemoteState(ctx, tx, lst.SKU, offer.Status, offer.Price, offer.ViewCount, offer.WatchCount); err != nil {
		return nil, fmt.Errorf("failed to overwrite listing state: %w", err)
	}
	// A purchase we made stays purchased even if the sourcing site now
	// reports the item as gone.
	srcStatus := remoteItem.Status
	if item.Status == SourceStatusPurchased && srcStatus == SourceStatusUnpurchasable {
		srcStatus = SourceStatusPurchased
	}
	if err := d.sourceItems.UpdateRemoteState(ctx, tx, item.SourceID, srcStatus, remoteItem.Price, remoteItem.EndAt); err != nil {
		return nil, fmt.Errorf("failed to overwrite source item state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	lst.Status = offer.Status
	lst.Price = offer.Price
	lst.ViewCount = offer.ViewCount
	lst.WatchCount = offer.WatchCount

	d.logger.Info("listing synchronized", "sku", lst.SKU, "listing_status", lst.Status)

	return lst, nil
}

func (d *Dispatcher) sourceFor(variant SourceVariant) (SourceService, error) {
	src, ok := d.sources[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	return src, nil
}

func (d *Dispatcher) saveEvent(ctx context.Context, tx pgx.Tx, action Action, lst *Listing, item *SourceItem) error {
	eventType, ok := eventTypeFor(action)
	if !ok {
		return nil
	}

	event, err := events.NewEvent(eventType, LifecycleEvent{
		SKU:           lst.SKU,
		Action:        action,
		ListingStatus: lst.Status,
		SourceStatus:  item.Status,
		OccurredAt:    time.Now(),
	})
	if err != nil {
		return err
	}
	if err := d.outbox.SaveEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}

func eventTypeFor(action Action) (string, bool) {
	switch action {
	case ActionWithdraw:
		return EventTypeListingWithdrawn, true
	case ActionRelist:
		return EventTypeListingRelisted, true
	case ActionPurchase:
		return EventTypeSourceItemPurchased, true
	case ActionSales:
		return EventTypeListingCompleted, true
	default:
		return "", false
	}
}

// RegisterItemCommand describes a source item being registered for resale
type RegisterItemCommand struct {
	SKU      string
	OfferID  string
	Family   string
	SourceID string
	URL      string
	Variant  SourceVariant
	Name     string

	Price         int64 // yen
	ShippingCost  int64 // yen
	ShippingPrice int64 // target currency, cents
	EndAt         *time.Time
}

// RegisterItem registers a source item for resale: it runs the forward price
// calculation from a fresh rate snapshot, creates the source item and its
// listing, and attempts the initial publish on the target marketplace. If
// the marketplace rejects the publish the listing is persisted as failed
// (the only way a listing enters that terminal state) and a *RemoteError is
// returned alongside the stored record.
func (d *Dispatcher) RegisterItem(ctx context.Context, cmd RegisterItemCommand) (*Listing, *pricing.Breakdown, error) {
	if !cmd.Variant.IsValid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownVariant, cmd.Variant)
	}

	cfg, err := d.rates.Rates(ctx)
	if err != nil {
		return nil, nil, &RemoteError{Op: "fetch rates", Err: err}
	}
	bd, err := pricing.Quote(cfg, cmd.Price+cmd.ShippingCost)
	if err != nil {
		return nil, nil, err
	}

	release, err := d.lock.TryAcquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = release(ctx)
	}()

	tx, err := d.txManager.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := time.Now()
	item := &SourceItem{
		SourceID:     cmd.SourceID,
		URL:          cmd.URL,
		Variant:      cmd.Variant,
		Name:         cmd.Name,
		Price:        cmd.Price,
		ShippingCost: cmd.ShippingCost,
		EndAt:        cmd.EndAt,
		Status:       SourceStatusPurchasable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	lst := &Listing{
		SKU:           cmd.SKU,
		OfferID:       cmd.OfferID,
		SourceID:      cmd.SourceID,
		Family:        cmd.Family,
		Price:         bd.ListingPrice,
		ShippingPrice: cmd.ShippingPrice,
		Profit:        bd.Profit,
		ProfitSource:  bd.ProfitSource,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var publishErr error
	if err := d.offers.Publish(ctx, cmd.OfferID); err != nil {
		// Rejected by the target marketplace: keep the record, mark it
		// failed so the dashboard can surface it.
		lst.Status = StatusFailed
		publishErr = &RemoteError{Op: "publish", Err: err}
	}

	if err := d.sourceItems.Create(ctx, tx, item); err != nil {
		return nil, nil, fmt.Errorf("failed to create source item: %w", err)
	}
	if err := d.listings.Create(ctx, tx, lst); err != nil {
		return nil, nil, fmt.Errorf("failed to create listing: %w", err)
	}

	if publishErr == nil {
		event, err := events.NewEvent(EventTypeListingRegistered, LifecycleEvent{
			SKU:           lst.SKU,
			ListingStatus: lst.Status,
			SourceStatus:  item.Status,
			OccurredAt:    now,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := d.outbox.SaveEvent(ctx, tx, event); err != nil {
			return nil, nil, fmt.Errorf("failed to save outbox event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.logger.Info("item registered for resale",
		"sku", lst.SKU, "variant", cmd.Variant, "listing_status", lst.Status,
		"listing_price_cents", bd.ListingPrice, "profit_yen", bd.ProfitSource)

	return lst, &bd, publishErr
}
