package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PosterRepository handles poster state, artist summaries, and listener
// counters.
type PosterRepository struct {
	pool *pgxpool.Pool
}

// CreatePending inserts a poster that has only its source reference.
func (r *PosterRepository) CreatePending(ctx context.Context, id, uploadedURL string) error {
	query := `
		INSERT INTO posters (id, uploaded_url, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, id, uploadedURL); err != nil {
		return fmt.Errorf("inserting poster: %w", err)
	}
	return nil
}

// Get retrieves a poster by id.
func (r *PosterRepository) Get(ctx context.Context, id string) (*Poster, error) {
	query := `
		SELECT id, uploaded_url, canonical_url, slug, tour_name, band_names,
		       events, listen_count, created_at, updated_at
		FROM posters
		WHERE id = $1
	`
	var (
		poster     Poster
		eventsJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&poster.ID,
		&poster.UploadedURL,
		&poster.CanonicalURL,
		&poster.Slug,
		&poster.TourName,
		&poster.BandNames,
		&eventsJSON,
		&poster.ListenCount,
		&poster.CreatedAt,
		&poster.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying poster: %w", err)
	}
	if len(eventsJSON) > 0 {
		if err := json.Unmarshal(eventsJSON, &poster.Events); err != nil {
			return nil, fmt.Errorf("parsing poster events: %w", err)
		}
	}
	return &poster, nil
}

// CommitExtraction merges extraction results into the poster. The slug is
// written only if not already present, so it is set at most once.
func (r *PosterRepository) CommitExtraction(ctx context.Context, id, slug, tourName string, bandNames []string, events []Event) error {
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encoding poster events: %w", err)
	}

	query := `
		UPDATE posters
		SET slug = COALESCE(slug, $2),
		    tour_name = $3,
		    band_names = $4,
		    events = $5,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, slug, tourName, bandNames, eventsJSON)
	if err != nil {
		return fmt.Errorf("committing extraction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSlug overwrites the poster's slug.
func (r *PosterRepository) SetSlug(ctx context.Context, id, slug string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE posters SET slug = $2, updated_at = NOW() WHERE id = $1`, id, slug)
	if err != nil {
		return fmt.Errorf("updating slug: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCanonicalURL records the normalized image reference.
func (r *PosterRepository) SetCanonicalURL(ctx context.Context, id, url string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE posters SET canonical_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("updating canonical url: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertArtistSummary appends a band's enrichment, replacing any previous
// summary for the same band name.
func (r *PosterRepository) UpsertArtistSummary(ctx context.Context, summary *ArtistSummary) error {
	query := `
		INSERT INTO poster_artists (poster_id, position, name, uri, spotify_url, genres, description, top_track_uris)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (poster_id, name) DO UPDATE SET
			position = EXCLUDED.position,
			uri = EXCLUDED.uri,
			spotify_url = EXCLUDED.spotify_url,
			genres = EXCLUDED.genres,
			description = EXCLUDED.description,
			top_track_uris = EXCLUDED.top_track_uris
	`
	_, err := r.pool.Exec(ctx, query,
		summary.PosterID,
		summary.Position,
		summary.Name,
		summary.URI,
		summary.SpotifyURL,
		summary.Genres,
		summary.Description,
		summary.TopTrackURIs,
	)
	if err != nil {
		return fmt.Errorf("upserting artist summary: %w", err)
	}
	return nil
}

// ListArtistSummaries returns a poster's summaries in band order.
func (r *PosterRepository) ListArtistSummaries(ctx context.Context, posterID string) ([]ArtistSummary, error) {
	query := `
		SELECT poster_id, position, name, uri, spotify_url, genres, description, top_track_uris
		FROM poster_artists
		WHERE poster_id = $1
		ORDER BY position
	`
	rows, err := r.pool.Query(ctx, query, posterID)
	if err != nil {
		return nil, fmt.Errorf("querying artist summaries: %w", err)
	}
	defer rows.Close()

	var summaries []ArtistSummary
	for rows.Next() {
		var s ArtistSummary
		if err := rows.Scan(&s.PosterID, &s.Position, &s.Name, &s.URI, &s.SpotifyURL, &s.Genres, &s.Description, &s.TopTrackURIs); err != nil {
			return nil, fmt.Errorf("scanning artist summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// IncrementListener bumps the per-listener counter (inserting it on first
// listen) and republishes the poster-wide sum as the aggregate listen
// count. Returns the new aggregate.
func (r *PosterRepository) IncrementListener(ctx context.Context, posterID, spotifyUserID string) (int, error) {
	upsert := `
		INSERT INTO poster_listeners (poster_id, spotify_user_id, listen_count, created_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (poster_id, spotify_user_id) DO UPDATE SET
			listen_count = poster_listeners.listen_count + 1
	`
	if _, err := r.pool.Exec(ctx, upsert, posterID, spotifyUserID); err != nil {
		return 0, fmt.Errorf("upserting listener: %w", err)
	}

	aggregate := `
		UPDATE posters
		SET listen_count = (
			SELECT COALESCE(SUM(listen_count), 0)
			FROM poster_listeners
			WHERE poster_id = $1
		), updated_at = NOW()
		WHERE id = $1
		RETURNING listen_count
	`
	var total int
	err := r.pool.QueryRow(ctx, aggregate, posterID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("updating aggregate listen count: %w", err)
	}
	return total, nil
}

// Delete removes the poster and all derived rows.
func (r *PosterRepository) Delete(ctx context.Context, id string) error {
	for _, query := range []string{
		`DELETE FROM poster_artists WHERE poster_id = $1`,
		`DELETE FROM poster_listeners WHERE poster_id = $1`,
		`DELETE FROM posters WHERE id = $1`,
	} {
		if _, err := r.pool.Exec(ctx, query, id); err != nil {
			return fmt.Errorf("deleting poster rows: %w", err)
		}
	}
	return nil
}
