package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfujino/sellbridge/internal/domain/listing"
	pkgdb "github.com/mfujino/sellbridge/pkg/database"
)

// PostgresListingRepository implements listing.Repository using pgx
type PostgresListingRepository struct {
	pool *pgxpool.Pool // Keep pool for non-transactional reads
}

// NewPostgresListingRepository creates a new PostgreSQL listing repository
func NewPostgresListingRepository(pool *pgxpool.Pool) *PostgresListingRepository {
	return &PostgresListingRepository{pool: pool}
}

const listingColumns = `sku, offer_id, source_id, family, price, shipping_price,
	profit, profit_source, view_count, watch_count, status, created_at, updated_at`

// Create inserts a new listing within a transaction
func (r *PostgresListingRepository) Create(ctx context.Context, tx pgx.Tx, l *listing.Listing) error {
	query := `
		INSERT INTO listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := tx.Exec(ctx, query,
		l.SKU,
		l.OfferID,
		l.SourceID,
		l.Family,
		l.Price,
		l.ShippingPrice,
		l.Profit,
		l.ProfitSource,
		l.ViewCount,
		l.WatchCount,
		l.Status,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// GetBySKU retrieves a listing by SKU (non-transactional read)
func (r *PostgresListingRepository) GetBySKU(ctx context.Context, sku string) (*listing.Listing, error) {
	return r.getBySKU(ctx, r.pool, sku, false)
}

// GetBySKUForUpdate retrieves a listing by SKU and locks the row.
// This serializes lifecycle actions against the same record at the database
// level, underneath the coarser action lock.
func (r *PostgresListingRepository) GetBySKUForUpdate(ctx context.Context, tx pgx.Tx, sku string) (*listing.Listing, error) {
	return r.getBySKU(ctx, tx, sku, true)
}

// getBySKU is the internal implementation that works with any DBTX
func (r *PostgresListingRepository) getBySKU(ctx context.Context, db pkgdb.DBTX, sku string, forUpdate bool) (*listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE sku = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var l listing.Listing
	err := db.QueryRow(ctx, query, sku).Scan(
		&l.SKU,
		&l.OfferID,
		&l.SourceID,
		&l.Family,
		&l.Price,
		&l.ShippingPrice,
		&l.Profit,
		&l.ProfitSource,
		&l.ViewCount,
		&l.WatchCount,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, listing.ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &l, nil
}

// UpdateStatus updates a listing's status within a transaction
func (r *PostgresListingRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, sku string, status listing.Status) error {
	query := `
		UPDATE listings
		SET status = $1, updated_at = NOW()
		WHERE sku = $2
	`
	result, err := tx.Exec(ctx, query, status, sku)
	if err != nil {
		return fmt.Errorf("failed to update listing status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return listing.ErrListingNotFound
	}
	return nil
}

// UpdateRemoteState overwrites status, price and metrics with the remote truth
func (r *PostgresListingRepository) UpdateRemoteState(ctx context.Context, tx pgx.Tx, sku string, status listing.Status, price, viewCount, watchCount int64) error {
	query := `
		UPDATE listings
		SET status = $1, price = $2, view_count = $3, watch_count = $4, updated_at = NOW()
		WHERE sku = $5
	`
	result, err := tx.Exec(ctx, query, status, price, viewCount, watchCount, sku)
	if err != nil {
		return fmt.Errorf("failed to overwrite listing state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return listing.ErrListingNotFound
	}
	return nil
}

// ListByFamily retrieves all listings for one marketplace family
func (r *PostgresListingRepository) ListByFamily(ctx context.Context, family string) ([]*listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE family = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, family)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []*listing.Listing
	for rows.Next() {
		var l listing.Listing
		if err := rows.Scan(
			&l.SKU,
			&l.OfferID,
			&l.SourceID,
			&l.Family,
			&l.Price,
			&l.ShippingPrice,
			&l.Profit,
			&l.ProfitSource,
			&l.ViewCount,
			&l.WatchCount,
			&l.Status,
			&l.CreatedAt,
			&l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, &l)
	}
	return listings, rows.Err()
}
