package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfujino/sellbridge/internal/domain/listing"
	pkgdb "github.com/mfujino/sellbridge/pkg/database"
)

// PostgresSourceItemRepository implements listing.SourceItemRepository using pgx
type PostgresSourceItemRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSourceItemRepository creates a new PostgreSQL source item repository
func NewPostgresSourceItemRepository(pool *pgxpool.Pool) *PostgresSourceItemRepository {
	return &PostgresSourceItemRepository{pool: pool}
}

const sourceItemColumns = `source_id, url, variant, name, price, shipping_cost,
	end_at, status, created_at, updated_at`

// Create inserts a new source item within a transaction
func (r *PostgresSourceItemRepository) Create(ctx context.Context, tx pgx.Tx, item *listing.SourceItem) error {
	query := `
		INSERT INTO source_items (` + sourceItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.Exec(ctx, query,
		item.SourceID,
		item.URL,
		item.Variant,
		item.Name,
		item.Price,
		item.ShippingCost,
		item.EndAt,
		item.Status,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert source item: %w", err)
	}
	return nil
}

// GetByID retrieves a source item by its marketplace id (non-transactional read)
func (r *PostgresSourceItemRepository) GetByID(ctx context.Context, sourceID string) (*listing.SourceItem, error) {
	return r.getByID(ctx, r.pool, sourceID, false)
}

// GetByIDForUpdate retrieves a source item and locks the row
func (r *PostgresSourceItemRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, sourceID string) (*listing.SourceItem, error) {
	return r.getByID(ctx, tx, sourceID, true)
}

func (r *PostgresSourceItemRepository) getByID(ctx context.Context, db pkgdb.DBTX, sourceID string, forUpdate bool) (*listing.SourceItem, error) {
	query := `SELECT ` + sourceItemColumns + ` FROM source_items WHERE source_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var item listing.SourceItem
	err := db.QueryRow(ctx, query, sourceID).Scan(
		&item.SourceID,
		&item.URL,
		&item.Variant,
		&item.Name,
		&item.Price,
		&item.ShippingCost,
		&item.EndAt,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, listing.ErrSourceItemNotFound
		}
		return nil, fmt.Errorf("failed to get source item: %w", err)
	}
	return &item, nil
}

// UpdateStatus updates a source item's purchase status within a transaction
func (r *PostgresSourceItemRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, sourceID string, status listing.SourceItemStatus) error {
	query := `
		UPDATE source_items
		SET status = $1, updated_at = NOW()
		WHERE source_id = $2
	`
	result, err := tx.Exec(ctx, query, status, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update source item status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return listing.ErrSourceItemNotFound
	}
	return nil
}

// UpdateRemoteState overwrites status, price and auction end time with the
// remote truth. A NULL endAt keeps the stored end_at.
func (r *PostgresSourceItemRepository) UpdateRemoteState(ctx context.Context, tx pgx.Tx, sourceID string, status listing.SourceItemStatus, price int64, endAt *time.Time) error {
	query := `
		UPDATE source_items
		SET status = $1, price = $2, end_at = COALESCE($3, end_at), updated_at = NOW()
		WHERE source_id = $4
	`
	result, err := tx.Exec(ctx, query, status, price, endAt, sourceID)
	if err != nil {
		return fmt.Errorf("failed to overwrite source item state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return listing.ErrSourceItemNotFound
	}
	return nil
}

// ListByVariant retrieves all source items of one sourcing variant
func (r *PostgresSourceItemRepository) ListByVariant(ctx context.Context, variant listing.SourceVariant) ([]*listing.SourceItem, error) {
	query := `SELECT ` + sourceItemColumns + ` FROM source_items WHERE variant = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, variant)
	if err != nil {
		return nil, fmt.Errorf("failed to list source items: %w", err)
	}
	defer rows.Close()

	var items []*listing.SourceItem
	for rows.Next() {
		var item listing.SourceItem
		if err := rows.Scan(
			&item.SourceID,
			&item.URL,
			&item.Variant,
			&item.Name,
			&item.Price,
			&item.ShippingCost,
			&item.EndAt,
			&item.Status,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan source item: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}
