package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles one listener's identity, token vault, ledgers, and
// run log.
type UserRepository struct {
	pool *pgxpool.Pool
}

// Upsert creates or overwrites a user's identity. Re-login always wins.
func (r *UserRepository) Upsert(ctx context.Context, user *SpotifyUser) error {
	query := `
		INSERT INTO spotify_users (id, display_name, url, email, token_expires_at, logged_in_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			url = EXCLUDED.url,
			email = EXCLUDED.email,
			token_expires_at = EXCLUDED.token_expires_at,
			logged_in_at = EXCLUDED.logged_in_at
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.DisplayName,
		user.URL,
		user.Email,
		user.TokenExpiresAt,
		user.LoggedInAt,
	)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// Get retrieves a user by id.
func (r *UserRepository) Get(ctx context.Context, id string) (*SpotifyUser, error) {
	query := `
		SELECT id, display_name, url, email, token_expires_at, logged_in_at
		FROM spotify_users
		WHERE id = $1
	`
	var user SpotifyUser
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.DisplayName,
		&user.URL,
		&user.Email,
		&user.TokenExpiresAt,
		&user.LoggedInAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

// UpdateSession refreshes the session expiry after a token append.
func (r *UserRepository) UpdateSession(ctx context.Context, id string, expiresAt, loggedInAt time.Time) error {
	query := `
		UPDATE spotify_users
		SET token_expires_at = $2, logged_in_at = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, expiresAt, loggedInAt)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendToken appends a credential to the vault. Entries are never
// overwritten; the newest row is authoritative.
func (r *UserRepository) AppendToken(ctx context.Context, token *Token) error {
	query := `
		INSERT INTO spotify_tokens (user_id, token_json, refresh_token, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		token.UserID,
		string(token.TokenJSON),
		token.RefreshToken,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending token: %w", err)
	}
	return nil
}

// LatestToken returns the newest vault entry for the user.
func (r *UserRepository) LatestToken(ctx context.Context, userID string) (*Token, error) {
	query := `
		SELECT id, user_id, token_json, refresh_token, created_at
		FROM spotify_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var (
		token     Token
		tokenJSON string
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&token.ID,
		&token.UserID,
		&tokenJSON,
		&token.RefreshToken,
		&token.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest token: %w", err)
	}
	token.TokenJSON = []byte(tokenJSON)
	return &token, nil
}

// LatestRefreshToken returns the newest non-null refresh token for the
// user. Refresh grants may omit the refresh token, so the newest vault
// entry is not necessarily the right row.
func (r *UserRepository) LatestRefreshToken(ctx context.Context, userID string) (string, error) {
	query := `
		SELECT refresh_token
		FROM spotify_tokens
		WHERE user_id = $1 AND refresh_token IS NOT NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var refreshToken string
	err := r.pool.QueryRow(ctx, query, userID).Scan(&refreshToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying refresh token: %w", err)
	}
	return refreshToken, nil
}

// AddWatchedTrack appends to the watch ledger. The ledger only grows.
func (r *UserRepository) AddWatchedTrack(ctx context.Context, userID, uri, posterID string) error {
	query := `
		INSERT INTO watched_tracks (user_id, uri, poster_id, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := r.pool.Exec(ctx, query, userID, uri, posterID); err != nil {
		return fmt.Errorf("adding watched track: %w", err)
	}
	return nil
}

// WatchedTrackURIs returns every watched URI for the user.
func (r *UserRepository) WatchedTrackURIs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT uri FROM watched_tracks WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying watched uris: %w", err)
	}
	defer rows.Close()

	var uris []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("scanning watched uri: %w", err)
		}
		uris = append(uris, uri)
	}
	return uris, rows.Err()
}

// WatchedTracksByURI returns every ledger row for the given URI. A URI
// watched for multiple posters yields multiple rows.
func (r *UserRepository) WatchedTracksByURI(ctx context.Context, userID, uri string) ([]WatchedTrack, error) {
	query := `
		SELECT id, user_id, uri, poster_id, created_at
		FROM watched_tracks
		WHERE user_id = $1 AND uri = $2
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, userID, uri)
	if err != nil {
		return nil, fmt.Errorf("querying watched tracks: %w", err)
	}
	defer rows.Close()

	var tracks []WatchedTrack
	for rows.Next() {
		var track WatchedTrack
		if err := rows.Scan(&track.ID, &track.UserID, &track.URI, &track.PosterID, &track.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning watched track: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// AppendListen records one realized watched-track match.
func (r *UserRepository) AppendListen(ctx context.Context, userID, uri, posterID string) error {
	query := `
		INSERT INTO track_listens (user_id, uri, poster_id, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := r.pool.Exec(ctx, query, userID, uri, posterID); err != nil {
		return fmt.Errorf("appending listen: %w", err)
	}
	return nil
}

// LatestRun returns the most recent reconciliation run, or ErrNotFound if
// the user has never reconciled.
func (r *UserRepository) LatestRun(ctx context.Context, userID string) (*ReconciliationRun, error) {
	query := `
		SELECT id, user_id, total_recent, total_matches, total_watched, completed_at
		FROM reconciliation_runs
		WHERE user_id = $1
		ORDER BY completed_at DESC, id DESC
		LIMIT 1
	`
	var run ReconciliationRun
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&run.ID,
		&run.UserID,
		&run.TotalRecent,
		&run.TotalMatches,
		&run.TotalWatched,
		&run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	return &run, nil
}

// AppendRun records a completed reconciliation pass.
func (r *UserRepository) AppendRun(ctx context.Context, run *ReconciliationRun) error {
	query := `
		INSERT INTO reconciliation_runs (user_id, total_recent, total_matches, total_watched, completed_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, completed_at
	`
	err := r.pool.QueryRow(ctx, query,
		run.UserID,
		run.TotalRecent,
		run.TotalMatches,
		run.TotalWatched,
	).Scan(&run.ID, &run.CompletedAt)
	if err != nil {
		return fmt.Errorf("appending run: %w", err)
	}
	return nil
}

// ListRuns returns the reconciliation log, newest first.
func (r *UserRepository) ListRuns(ctx context.Context, userID string) ([]ReconciliationRun, error) {
	query := `
		SELECT id, user_id, total_recent, total_matches, total_watched, completed_at
		FROM reconciliation_runs
		WHERE user_id = $1
		ORDER BY completed_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []ReconciliationRun
	for rows.Next() {
		var run ReconciliationRun
		if err := rows.Scan(&run.ID, &run.UserID, &run.TotalRecent, &run.TotalMatches, &run.TotalWatched, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// AddPlaylist records a playlist created on behalf of the user.
func (r *UserRepository) AddPlaylist(ctx context.Context, userID, url, title string) error {
	query := `
		INSERT INTO user_playlists (user_id, url, title, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := r.pool.Exec(ctx, query, userID, url, title); err != nil {
		return fmt.Errorf("adding playlist: %w", err)
	}
	return nil
}

// ListPlaylists returns the user's created playlists in creation order.
func (r *UserRepository) ListPlaylists(ctx context.Context, userID string) ([]UserPlaylist, error) {
	query := `
		SELECT id, user_id, url, title, created_at
		FROM user_playlists
		WHERE user_id = $1
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying playlists: %w", err)
	}
	defer rows.Close()

	var playlists []UserPlaylist
	for rows.Next() {
		var p UserPlaylist
		if err := rows.Scan(&p.ID, &p.UserID, &p.URL, &p.Title, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// DeleteAll tears down every row owned by the user.
func (r *UserRepository) DeleteAll(ctx context.Context, userID string) error {
	for _, query := range []string{
		`DELETE FROM watched_tracks WHERE user_id = $1`,
		`DELETE FROM track_listens WHERE user_id = $1`,
		`DELETE FROM reconciliation_runs WHERE user_id = $1`,
		`DELETE FROM user_playlists WHERE user_id = $1`,
		`DELETE FROM spotify_tokens WHERE user_id = $1`,
		`DELETE FROM spotify_users WHERE id = $1`,
	} {
		if _, err := r.pool.Exec(ctx, query, userID); err != nil {
			return fmt.Errorf("deleting user rows: %w", err)
		}
	}
	return nil
}
