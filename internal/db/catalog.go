package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository handles the Orchestrator's submission and playlist-link
// tables.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// CreateSubmission inserts a new poster submission row.
func (r *CatalogRepository) CreateSubmission(ctx context.Context, id, url string) error {
	query := `
		INSERT INTO poster_submissions (id, url, created_at)
		VALUES ($1, $2, NOW())
	`
	_, err := r.pool.Exec(ctx, query, id, url)
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	return nil
}

// SetSubmissionSlug records the slug produced by extraction.
func (r *CatalogRepository) SetSubmissionSlug(ctx context.Context, id, slug string) error {
	query := `UPDATE poster_submissions SET slug = $2 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, slug)
	if err != nil {
		return fmt.Errorf("updating submission slug: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSubmission retrieves one submission by id.
func (r *CatalogRepository) GetSubmission(ctx context.Context, id string) (*PosterSubmission, error) {
	query := `
		SELECT id, url, slug, created_at
		FROM poster_submissions
		WHERE id = $1
	`
	var sub PosterSubmission
	err := r.pool.QueryRow(ctx, query, id).Scan(&sub.ID, &sub.URL, &sub.Slug, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying submission: %w", err)
	}
	return &sub, nil
}

// SubmissionIDBySlug resolves a slug to its poster id.
func (r *CatalogRepository) SubmissionIDBySlug(ctx context.Context, slug string) (string, error) {
	query := `SELECT id FROM poster_submissions WHERE slug = $1 LIMIT 1`
	var id string
	err := r.pool.QueryRow(ctx, query, slug).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying submission by slug: %w", err)
	}
	return id, nil
}

// SubmissionIDByURL resolves a source URL to its poster id. Used to
// deduplicate redelivered upload events.
func (r *CatalogRepository) SubmissionIDByURL(ctx context.Context, url string) (string, error) {
	query := `SELECT id FROM poster_submissions WHERE url = $1 LIMIT 1`
	var id string
	err := r.pool.QueryRow(ctx, query, url).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying submission by url: %w", err)
	}
	return id, nil
}

// ListSubmissions returns all submissions in creation order.
func (r *CatalogRepository) ListSubmissions(ctx context.Context) ([]PosterSubmission, error) {
	query := `
		SELECT id, url, slug, created_at
		FROM poster_submissions
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var subs []PosterSubmission
	for rows.Next() {
		var sub PosterSubmission
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Slug, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteAllSubmissions clears the submission catalog.
func (r *CatalogRepository) DeleteAllSubmissions(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM poster_submissions`); err != nil {
		return fmt.Errorf("deleting submissions: %w", err)
	}
	return nil
}

// CreatePlaylistLink records a playlist created for a poster and user.
func (r *CatalogRepository) CreatePlaylistLink(ctx context.Context, link *PlaylistLink) error {
	query := `
		INSERT INTO poster_playlists (id, playlist_id, poster_id, spotify_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	now := time.Now()
	_, err := r.pool.Exec(ctx, query,
		link.ID,
		link.PlaylistID,
		link.PosterID,
		link.SpotifyUserID,
		now,
	)
	if err != nil {
		return fmt.Errorf("inserting playlist link: %w", err)
	}
	link.CreatedAt = now
	return nil
}

// ListPlaylistLinks returns all playlist links for a poster.
func (r *CatalogRepository) ListPlaylistLinks(ctx context.Context, posterID string) ([]PlaylistLink, error) {
	query := `
		SELECT id, playlist_id, poster_id, spotify_user_id, created_at
		FROM poster_playlists
		WHERE poster_id = $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, posterID)
	if err != nil {
		return nil, fmt.Errorf("querying playlist links: %w", err)
	}
	defer rows.Close()

	var links []PlaylistLink
	for rows.Next() {
		var link PlaylistLink
		if err := rows.Scan(&link.ID, &link.PlaylistID, &link.PosterID, &link.SpotifyUserID, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning playlist link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
