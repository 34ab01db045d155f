package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/reclaim/internal/item"
)

// PostgresRepository implements Repository using PostgreSQL with full
// transaction support. The UNIQUE constraint on matches.pair_key is the
// sole correctness mechanism for concurrent upserts of the same pair:
// INSERT ... ON CONFLICT resolves the race as an update.
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

const matchColumns = `
	id, lost_item_id, found_item_id, score_final, score_breakdown,
	distance_km, time_diff_hours, status, created_at, updated_at
`

// scanMatch scans one match row, decoding the JSONB breakdown.
func scanMatch(row interface{ Scan(...any) error }) (*Match, error) {
	var m Match
	var breakdown []byte
	err := row.Scan(
		&m.ID, &m.LostItemID, &m.FoundItemID, &m.ScoreFinal, &breakdown,
		&m.DistanceKM, &m.TimeDiffHours, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &m.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode score breakdown: %w", err)
		}
	}
	return &m, nil
}

// Upsert inserts a new match for the pair or rescores the existing one.
// The conflict target is the canonical pair key, so the two sides of one
// pair being scored concurrently still yield exactly one row. Status is
// deliberately absent from the update set: rescoring never regresses it.
func (r *PostgresRepository) Upsert(ctx context.Context, m *Match) (*UpsertResult, error) {
	breakdown, err := json.Marshal(m.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("failed to encode score breakdown: %w", err)
	}

	query := `
		INSERT INTO matches (
			id, lost_item_id, found_item_id, pair_key, score_final,
			score_breakdown, distance_km, time_diff_hours, status,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (pair_key) DO UPDATE SET
			score_final = EXCLUDED.score_final,
			score_breakdown = EXCLUDED.score_breakdown,
			distance_km = EXCLUDED.distance_km,
			time_diff_hours = EXCLUDED.time_diff_hours,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted
	`

	var result UpsertResult
	err = r.db.QueryRowContext(ctx, query,
		uuid.New().String(), m.LostItemID, m.FoundItemID,
		PairKey(m.LostItemID, m.FoundItemID),
		m.ScoreFinal, breakdown, m.DistanceKM, m.TimeDiffHours, StatusPending,
	).Scan(&result.ID, &result.Inserted)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert match: %w", err)
	}

	r.logger.Debug("match upserted",
		slog.String("match_id", result.ID),
		slog.String("lost_item_id", m.LostItemID),
		slog.String("found_item_id", m.FoundItemID),
		slog.Float64("score_final", m.ScoreFinal),
		slog.Bool("is_new", result.Inserted))
	return &result, nil
}

// GetByID retrieves a match by id. Returns ErrMatchNotFound if absent.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// ListForItem returns matches referencing the item on either side,
// highest score first with newer matches breaking ties.
func (r *PostgresRepository) ListForItem(ctx context.Context, itemID string, includeDismissed bool) ([]*Match, error) {
	query := `SELECT ` + matchColumns + `
		FROM matches
		WHERE (lost_item_id = $1 OR found_item_id = $1)
		  AND ($2 OR status <> $3)
		ORDER BY score_final DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, itemID, includeDismissed, StatusDismissed)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	matches := []*Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return matches, nil
}

// UpdateStatus advances a match's status, forward transitions only.
// The row is locked for the read-check-write so two concurrent updates
// cannot both pass the transition check.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, next Status) (*Match, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Always attempt rollback on function exit (no-op after successful commit)
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback status transaction",
				slog.String("error", err.Error()))
		}
	}()

	var current Status
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM matches WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock match: %w", err)
	}

	if !current.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	row := tx.QueryRowContext(ctx,
		`UPDATE matches SET status = $1, updated_at = NOW() WHERE id = $2
		 RETURNING `+matchColumns, next, id)
	m, err := scanMatch(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update match status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("match status updated",
		slog.String("match_id", id),
		slog.String("from", string(current)),
		slog.String("to", string(next)))
	return m, nil
}

// ApproveClaim transitions the match to claimed and both of its items to
// claimed status in a single transaction.
func (r *PostgresRepository) ApproveClaim(ctx context.Context, matchID string) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback claim transaction",
				slog.String("error", err.Error()))
		}
	}()

	var current Status
	var lostID, foundID string
	err = tx.QueryRowContext(ctx,
		`SELECT status, lost_item_id, found_item_id FROM matches WHERE id = $1 FOR UPDATE`,
		matchID).Scan(&current, &lostID, &foundID)
	if err == sql.ErrNoRows {
		return ErrMatchNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock match: %w", err)
	}

	if !current.CanTransitionTo(StatusClaimed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, StatusClaimed)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE matches SET status = $1, updated_at = NOW() WHERE id = $2`,
		StatusClaimed, matchID); err != nil {
		return fmt.Errorf("failed to claim match: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET status = $1, updated_at = NOW() WHERE id::text = ANY($2)`,
		item.StatusClaimed, pq.Array([]string{lostID, foundID})); err != nil {
		return fmt.Errorf("failed to claim items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("claim approved",
		slog.String("match_id", matchID),
		slog.String("lost_item_id", lostID),
		slog.String("found_item_id", foundID))
	return nil
}

// DeleteOlderThan removes non-claimed matches last updated before cutoff.
// Claimed matches are kept as the durable record of a completed return.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM matches WHERE status <> $1 AND updated_at < $2`,
		StatusClaimed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old matches: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted matches: %w", err)
	}

	r.logger.Info("old matches deleted",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))
	return deleted, nil
}
