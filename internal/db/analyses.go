package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalysisRepository handles cached track analysis operations.
type AnalysisRepository struct {
	pool *pgxpool.Pool
}

// UpsertBatch inserts or replaces multiple analyses efficiently.
func (r *AnalysisRepository) UpsertBatch(ctx context.Context, analyses []TrackAnalysis) error {
	if len(analyses) == 0 {
		return nil
	}

	query := `
		INSERT INTO track_analyses (track_id, name, artist, frames, fetched_at)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::jsonb[], $5::timestamptz[])
		ON CONFLICT (track_id) DO UPDATE SET
			name = EXCLUDED.name,
			artist = EXCLUDED.artist,
			frames = EXCLUDED.frames,
			fetched_at = EXCLUDED.fetched_at
	`

	trackIDs := make([]string, len(analyses))
	names := make([]string, len(analyses))
	artists := make([]string, len(analyses))
	frames := make([]string, len(analyses))
	fetchedAts := make([]time.Time, len(analyses))

	for i, a := range analyses {
		data, err := json.Marshal(a.Frames)
		if err != nil {
			return fmt.Errorf("encoding frames for %s: %w", a.TrackID, err)
		}
		trackIDs[i] = a.TrackID
		names[i] = a.Name
		artists[i] = a.Artist
		frames[i] = string(data)
		fetchedAts[i] = a.FetchedAt
	}

	_, err := r.pool.Exec(ctx, query, trackIDs, names, artists, frames, fetchedAts)
	if err != nil {
		return fmt.Errorf("batch upserting analyses: %w", err)
	}
	return nil
}

// GetForTracks retrieves cached analyses, returning a map of track ID to
// analysis. Tracks with nothing cached are absent from the map.
func (r *AnalysisRepository) GetForTracks(ctx context.Context, trackIDs []string) (map[string]TrackAnalysis, error) {
	if len(trackIDs) == 0 {
		return make(map[string]TrackAnalysis), nil
	}

	query := `
		SELECT track_id, name, artist, frames, fetched_at
		FROM track_analyses
		WHERE track_id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, trackIDs)
	if err != nil {
		return nil, fmt.Errorf("querying track analyses: %w", err)
	}
	defer rows.Close()

	result := make(map[string]TrackAnalysis, len(trackIDs))
	for rows.Next() {
		var (
			a    TrackAnalysis
			data []byte
		)
		if err := rows.Scan(&a.TrackID, &a.Name, &a.Artist, &data, &a.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		if err := json.Unmarshal(data, &a.Frames); err != nil {
			return nil, fmt.Errorf("decoding frames for %s: %w", a.TrackID, err)
		}
		result[a.TrackID] = a
	}
	return result, rows.Err()
}

// DeleteOlderThan removes analyses fetched before cutoff and returns how many
// were removed.
func (r *AnalysisRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM track_analyses WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting stale analyses: %w", err)
	}
	return result.RowsAffected(), nil
}
