package item

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

const itemColumns = `
	id, status, category, subcategory, brand, model, color,
	title, description, lat, lng, geohash,
	occurred_at, window_start, window_end, owner_id, created_at, updated_at
`

// scanItem scans one item row. Description and geohash are nullable in the
// schema (no geohash is the normal state for an item without coordinates)
// but plain strings on the model.
func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var it Item
	var description, geohash sql.NullString
	err := row.Scan(
		&it.ID, &it.Status, &it.Category, &it.Subcategory, &it.Brand, &it.Model, &it.Color,
		&it.Title, &description, &it.Lat, &it.Lng, &geohash,
		&it.OccurredAt, &it.WindowStart, &it.WindowEnd, &it.OwnerID, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Description = description.String
	it.Geohash = geohash.String
	return &it, nil
}

// GetByID retrieves an item by id. Returns ErrItemNotFound if absent.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	it, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

// ListCandidates returns up to filter.Limit items matching the filter,
// most recent first. Items without coordinates are never excluded by the
// geohash prefilter.
func (r *PostgresRepository) ListCandidates(ctx context.Context, filter CandidateFilter) ([]*Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE status = $1
		  AND owner_id <> $2
		  AND ($3::text[] IS NULL OR lat IS NULL OR geohash = ANY($3))
		ORDER BY created_at DESC, id ASC
		LIMIT $4`

	var cells any
	if len(filter.GeohashCells) > 0 {
		cells = pq.Array(filter.GeohashCells)
	}

	limit := filter.Limit
	if limit <= 0 {
		// LIMIT NULL is valid Postgres but awkward with placeholders; use a
		// generous cap instead.
		limit = 10000
	}

	rows, err := r.db.QueryContext(ctx, query, filter.Status, filter.ExcludeOwnerID, cells, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// ListActive returns all lost and found items, most recent first.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE status IN ($1, $2)
		ORDER BY created_at DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, StatusLost, StatusFound)
	if err != nil {
		return nil, fmt.Errorf("failed to list active items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// collectItems drains an item result set.
func collectItems(rows *sql.Rows) ([]*Item, error) {
	items := []*Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// MediaForItem returns the media assets attached to an item, oldest first.
func (r *PostgresRepository) MediaForItem(ctx context.Context, itemID string) ([]*MediaAsset, error) {
	query := `SELECT id, item_id, perceptual_hash, secondary_hashes, created_at
		FROM media_assets
		WHERE item_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media assets: %w", err)
	}
	defer rows.Close()

	assets := []*MediaAsset{}
	for rows.Next() {
		var a MediaAsset
		if err := rows.Scan(&a.ID, &a.ItemID, &a.PerceptualHash, pq.Array(&a.SecondaryHashes), &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan media asset: %w", err)
		}
		assets = append(assets, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media assets: %w", err)
	}
	return assets, nil
}

// SetStatus updates an item's status. Returns ErrItemNotFound if absent.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status Status) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}

	r.logger.Info("item status updated",
		slog.String("item_id", id),
		slog.String("status", string(status)))
	return nil
}
