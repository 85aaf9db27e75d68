// Package db provides PostgreSQL database access for BandAid.
//
// Each agent owns its tables exclusively: the Orchestrator owns the
// submission catalog and playlist links, Poster agents own poster rows and
// their listeners, user agents own identity, tokens, ledgers, and run
// logs. Cross-agent references are plain ids.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool returns the underlying connection pool for advanced operations.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Catalog returns the Orchestrator's catalog repository.
func (db *DB) Catalog() *CatalogRepository {
	return &CatalogRepository{pool: db.pool}
}

// Posters returns a PosterRepository.
func (db *DB) Posters() *PosterRepository {
	return &PosterRepository{pool: db.pool}
}

// Users returns a UserRepository.
func (db *DB) Users() *UserRepository {
	return &UserRepository{pool: db.pool}
}

// WorkflowSteps returns a WorkflowStepRepository.
func (db *DB) WorkflowSteps() *WorkflowStepRepository {
	return &WorkflowStepRepository{pool: db.pool}
}

// migrations are applied in order on startup. Statements are idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS poster_submissions (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		slug TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS poster_playlists (
		id TEXT PRIMARY KEY,
		playlist_id TEXT NOT NULL,
		poster_id TEXT NOT NULL,
		spotify_user_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS posters (
		id TEXT PRIMARY KEY,
		uploaded_url TEXT NOT NULL,
		canonical_url TEXT,
		slug TEXT,
		tour_name TEXT,
		band_names TEXT[] NOT NULL DEFAULT '{}',
		events JSONB NOT NULL DEFAULT '[]',
		listen_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS poster_artists (
		poster_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		uri TEXT NOT NULL,
		spotify_url TEXT NOT NULL DEFAULT '',
		genres TEXT[] NOT NULL DEFAULT '{}',
		description TEXT,
		top_track_uris TEXT[],
		PRIMARY KEY (poster_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS poster_listeners (
		poster_id TEXT NOT NULL,
		spotify_user_id TEXT NOT NULL,
		listen_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (poster_id, spotify_user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS spotify_users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		token_expires_at TIMESTAMPTZ NOT NULL,
		logged_in_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS spotify_tokens (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		token_json TEXT NOT NULL,
		refresh_token TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS watched_tracks (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		poster_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS track_listens (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		poster_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		total_recent INTEGER NOT NULL,
		total_matches INTEGER NOT NULL,
		total_watched INTEGER NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_playlists (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_steps (
		workflow_id TEXT NOT NULL,
		step_name TEXT NOT NULL,
		result_json TEXT NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (workflow_id, step_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_watched_tracks_user_uri ON watched_tracks (user_id, uri)`,
	`CREATE INDEX IF NOT EXISTS idx_reconciliation_runs_user ON reconciliation_runs (user_id, completed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_spotify_tokens_user ON spotify_tokens (user_id, created_at DESC)`,
}

// Migrate applies the schema. Safe to run on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration: %w", err)
		}
	}
	return nil
}
