package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfujino/sellbridge/pkg/actionlock"
	"github.com/mfujino/sellbridge/pkg/database"
)

// Summary reports one bulk reconciliation pass over a marketplace family
type Summary struct {
	Family    string
	Active    int
	Sold      int
	Updated   int
	Unmatched int
}

// SourceSummary reports one bulk reconciliation pass over a sourcing variant
type SourceSummary struct {
	Variant   SourceVariant
	Updated   int
	Unmatched int
}

// Reconciler pulls the authoritative remote state in bulk and overwrites
// local status and metrics. Records with no remote match are left untouched:
// upstream absence is not treated as deletion, because a transient API error
// must not be mistaken for removal.
type Reconciler struct {
	txManager   database.TransactionManager
	listings    Repository
	sourceItems SourceItemRepository
	offers      OfferService
	sources     map[SourceVariant]SourceService
	lock        actionlock.Lock
	logger      *slog.Logger
}

// NewReconciler creates a new bulk reconciler. It shares the action lock
// with the dispatcher so a reconciliation pass can never interleave with a
// lifecycle action.
func NewReconciler(
	txManager database.TransactionManager,
	listings Repository,
	sourceItems SourceItemRepository,
	offers OfferService,
	sources map[SourceVariant]SourceService,
	lock actionlock.Lock,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		txManager:   txManager,
		listings:    listings,
		sourceItems: sourceItems,
		offers:      offers,
		sources:     sources,
		lock:        lock,
		logger:      logger,
	}
}

// Run reconciles the family and each variant once immediately, then once per
// interval until ctx is cancelled. A busy lock skips the pass; the next tick
// retries. Other errors are logged and the loop keeps going.
func (r *Reconciler) Run(ctx context.Context, family string, variants []SourceVariant, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial run
	r.runPass(ctx, family, variants)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.runPass(ctx, family, variants)
		}
	}
}

func (r *Reconciler) runPass(ctx context.Context, family string, variants []SourceVariant) {
	if _, err := r.ReconcileAll(ctx, family); err != nil {
		r.logPassError("family reconciliation failed", err)
	}
	for _, variant := range variants {
		if _, err := r.ReconcileSources(ctx, variant); err != nil {
			r.logPassError("source reconciliation failed", err)
		}
	}
}

func (r *Reconciler) logPassError(msg string, err error) {
	if errors.Is(err, actionlock.ErrBusy) {
		r.logger.Info("reconciliation skipped, action in flight")
		return
	}
	r.logger.Error(msg, "error", err)
}

// ReconcileAll fetches every remote offer for the given marketplace family
// and rewrites the matching local listings' status, price and view/watch
// counters. It returns actionlock.ErrBusy while a lifecycle action is in
// flight, and *RemoteError if the bulk fetch fails (no local change).
func (r *Reconciler) ReconcileAll(ctx context.Context, family string) (*Summary, error) {
	release, err := r.lock.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = release(ctx)
	}()

	remote, err := r.offers.ListOffers(ctx, family)
	if err != nil {
		return nil, &RemoteError{Op: "list offers", Err: err}
	}

	locals, err := r.listings.ListByFamily(ctx, family)
	if err != nil {
		return nil, fmt.Errorf("failed to list local listings: %w", err)
	}

	bySKU := make(map[string]*RemoteOffer, len(remote))
	for _, offer := range remote {
		bySKU[offer.SKU] = offer
	}

	tx, err := r.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	summary := &Summary{Family: family}
	for _, local := range locals {
		offer, ok := bySKU[local.SKU]
		if !ok {
			summary.Unmatched++
			continue
		}

		switch offer.Status {
		case StatusActive:
			summary.Active++
		case StatusSold:
			summary.Sold++
		}

		if !remoteDiffers(local, offer) {
			continue
		}
		if err := r.listings.UpdateRemoteState(ctx, tx, local.SKU, offer.Status, offer.Price, offer.ViewCount, offer.WatchCount); err != nil {
			return nil, fmt.Errorf("failed to overwrite listing %s: %w", local.SKU, err)
		}
		summary.Updated++
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("reconciliation pass complete",
		"family", family, "active", summary.Active, "sold", summary.Sold,
		"updated", summary.Updated, "unmatched", summary.Unmatched)

	return summary, nil
}

// ReconcileSources refreshes the purchase status and price of every local
// source item of one variant from the sourcing marketplace.
func (r *Reconciler) ReconcileSources(ctx context.Context, variant SourceVariant) (*SourceSummary, error) {
	src, ok := r.sources[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}

	release, err := r.lock.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = release(ctx)
	}()

	locals, err := r.sourceItems.ListByVariant(ctx, variant)
	if err != nil {
		return nil, fmt.Errorf("failed to list local source items: %w", err)
	}
	if len(locals) == 0 {
		return &SourceSummary{Variant: variant}, nil
	}

	ids := make([]string, 0, len(locals))
	for _, item := range locals {
		ids = append(ids, item.SourceID)
	}

	remote, err := src.ListItems(ctx, ids)
	if err != nil {
		return nil, &RemoteError{Op: "list items", Err: err}
	}
	byID := make(map[string]*RemoteSourceItem, len(remote))
	for _, item := range remote {
		byID[item.SourceID] = item
	}

	tx, err := r.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	summary := &SourceSummary{Variant: variant}
	for _, local := range locals {
		remoteItem, ok := byID[local.SourceID]
		if !ok {
			summary.Unmatched++
			continue
		}
		if !sourceDiffers(local, remoteItem) {
			continue
		}
		// A purchase we made stays purchased even if the sourcing site now
		// reports the item as gone.
		status := remoteItem.Status
		if local.Status == SourceStatusPurchased && status == SourceStatusUnpurchasable {
			status = SourceStatusPurchased
		}
		if err := r.sourceItems.UpdateRemoteState(ctx, tx, local.SourceID, status, remoteItem.Price, remoteItem.EndAt); err != nil {
			return nil, fmt.Errorf("failed to overwrite source item %s: %w", local.SourceID, err)
		}
		summary.Updated++
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("source reconciliation pass complete",
		"variant", variant, "updated", summary.Updated, "unmatched", summary.Unmatched)

	return summary, nil
}

func sourceDiffers(local *SourceItem, remote *RemoteSourceItem) bool {
	if remote.Status != local.Status || remote.Price != local.Price {
		return true
	}
	// Auctions can be extended by the seller; a new end time alone is worth
	// persisting. A nil remote end time keeps the stored value.
	return remote.EndAt != nil && (local.EndAt == nil || !remote.EndAt.Equal(*local.EndAt))
}

func remoteDiffers(local *Listing, offer *RemoteOffer) bool {
	return local.Status != offer.Status ||
		local.Price != offer.Price ||
		local.ViewCount != offer.ViewCount ||
		local.WatchCount != offer.WatchCount
}
