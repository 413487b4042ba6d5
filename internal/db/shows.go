package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ShowRepository handles show database operations.
type ShowRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a new show, assigning an ID when it has none.
func (r *ShowRepository) Create(ctx context.Context, show *Show) error {
	query := `
		INSERT INTO shows (id, name, created_at)
		VALUES ($1, $2, NOW())
		RETURNING created_at
	`
	if show.ID == uuid.Nil {
		show.ID = uuid.New()
	}
	if err := r.pool.QueryRow(ctx, query, show.ID, show.Name).Scan(&show.CreatedAt); err != nil {
		return fmt.Errorf("inserting show: %w", err)
	}
	return nil
}

// Get retrieves a show by ID.
func (r *ShowRepository) Get(ctx context.Context, id uuid.UUID) (*Show, error) {
	query := `SELECT id, name, created_at FROM shows WHERE id = $1`

	var show Show
	err := r.pool.QueryRow(ctx, query, id).Scan(&show.ID, &show.Name, &show.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying show: %w", err)
	}
	return &show, nil
}

// Latest retrieves the most recently created show.
func (r *ShowRepository) Latest(ctx context.Context) (*Show, error) {
	query := `SELECT id, name, created_at FROM shows ORDER BY created_at DESC LIMIT 1`

	var show Show
	err := r.pool.QueryRow(ctx, query).Scan(&show.ID, &show.Name, &show.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest show: %w", err)
	}
	return &show, nil
}

// Delete removes a show and its recorded lines.
func (r *ShowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM shows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting show: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LineRepository handles recorded division line operations.
type LineRepository struct {
	pool *pgxpool.Pool
}

// InsertBatch stores lines from any number of structures in one statement.
// Re-inserting a (show, frame, slot) keeps the first row.
func (r *LineRepository) InsertBatch(ctx context.Context, lines []DivisionLine) error {
	if len(lines) == 0 {
		return nil
	}

	query := `
		INSERT INTO division_lines (show_id, frame, slot, ref1_x, ref1_y, ref2_x, ref2_y, age, recorded_at)
		SELECT * FROM unnest($1::uuid[], $2::bigint[], $3::int[], $4::float8[], $5::float8[],
		                     $6::float8[], $7::float8[], $8::bigint[], $9::timestamptz[])
		ON CONFLICT (show_id, frame, slot) DO NOTHING
	`

	showIDs := make([]uuid.UUID, len(lines))
	frames := make([]int64, len(lines))
	slots := make([]int32, len(lines))
	ref1Xs := make([]float64, len(lines))
	ref1Ys := make([]float64, len(lines))
	ref2Xs := make([]float64, len(lines))
	ref2Ys := make([]float64, len(lines))
	ages := make([]int64, len(lines))
	recordedAts := make([]time.Time, len(lines))

	for i, l := range lines {
		showIDs[i] = l.ShowID
		frames[i] = l.Frame
		slots[i] = int32(l.Slot)
		ref1Xs[i] = l.Ref1X
		ref1Ys[i] = l.Ref1Y
		ref2Xs[i] = l.Ref2X
		ref2Ys[i] = l.Ref2Y
		ages[i] = l.Age
		recordedAts[i] = l.RecordedAt
	}

	_, err := r.pool.Exec(ctx, query, showIDs, frames, slots, ref1Xs, ref1Ys, ref2Xs, ref2Ys, ages, recordedAts)
	if err != nil {
		return fmt.Errorf("batch inserting division lines: %w", err)
	}
	return nil
}

// Latest retrieves the lines of the show's most recently recorded structure,
// ordered by slot. Returns ErrNotFound when nothing was recorded.
func (r *LineRepository) Latest(ctx context.Context, showID uuid.UUID) ([]DivisionLine, error) {
	query := `
		SELECT show_id, frame, slot, ref1_x, ref1_y, ref2_x, ref2_y, age, recorded_at
		FROM division_lines
		WHERE show_id = $1
		  AND frame = (SELECT MAX(frame) FROM division_lines WHERE show_id = $1)
		ORDER BY slot
	`
	rows, err := r.pool.Query(ctx, query, showID)
	if err != nil {
		return nil, fmt.Errorf("querying latest division lines: %w", err)
	}
	defer rows.Close()

	var lines []DivisionLine
	for rows.Next() {
		var l DivisionLine
		if err := rows.Scan(
			&l.ShowID,
			&l.Frame,
			&l.Slot,
			&l.Ref1X,
			&l.Ref1Y,
			&l.Ref2X,
			&l.Ref2Y,
			&l.Age,
			&l.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning division line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNotFound
	}
	return lines, nil
}

// CountStructures returns how many distinct structures a show has recorded.
func (r *LineRepository) CountStructures(ctx context.Context, showID uuid.UUID) (int, error) {
	query := `SELECT COUNT(DISTINCT frame) FROM division_lines WHERE show_id = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, showID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting structures: %w", err)
	}
	return count, nil
}
