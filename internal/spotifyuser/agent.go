// Package spotifyuser implements the per-listener agent. Each agent owns
// one Spotify user's identity, append-only token vault, watch ledger,
// listen log, and reconciliation runs, serialized through a per-instance
// mutex. Listen attributions leave the agent only as bus messages.
package spotifyuser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"bandaid/internal/blob"
	"bandaid/internal/bus"
	"bandaid/internal/db"
	"bandaid/internal/images"
	"bandaid/internal/spotify"
)

// How far back the first reconciliation reaches when no run exists yet.
const firstRunLookback = 10 * 24 * time.Hour

// Refreshing slightly before expiry avoids a rejected call racing the
// clock.
const expiryMargin = time.Minute

// Cover images are scaled to fit a small square per the playlist cover
// upload limits.
const coverMaxEdge = 300

// ErrNoToken is returned when the vault holds no credential for the user.
var ErrNoToken = errors.New("no token stored for user")

// Store is the user persistence capability, implemented by
// db.UserRepository.
type Store interface {
	Upsert(ctx context.Context, user *db.SpotifyUser) error
	Get(ctx context.Context, id string) (*db.SpotifyUser, error)
	UpdateSession(ctx context.Context, id string, expiresAt, loggedInAt time.Time) error
	AppendToken(ctx context.Context, token *db.Token) error
	LatestToken(ctx context.Context, userID string) (*db.Token, error)
	LatestRefreshToken(ctx context.Context, userID string) (string, error)
	AddWatchedTrack(ctx context.Context, userID, uri, posterID string) error
	WatchedTrackURIs(ctx context.Context, userID string) ([]string, error)
	WatchedTracksByURI(ctx context.Context, userID, uri string) ([]db.WatchedTrack, error)
	AppendListen(ctx context.Context, userID, uri, posterID string) error
	LatestRun(ctx context.Context, userID string) (*db.ReconciliationRun, error)
	AppendRun(ctx context.Context, run *db.ReconciliationRun) error
	ListRuns(ctx context.Context, userID string) ([]db.ReconciliationRun, error)
	AddPlaylist(ctx context.Context, userID, url, title string) error
	ListPlaylists(ctx context.Context, userID string) ([]db.UserPlaylist, error)
	DeleteAll(ctx context.Context, userID string) error
}

// Refresher exchanges a refresh token for a fresh credential, implemented
// by spotify.Authenticator.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Session is the user-scoped Spotify API surface, implemented by
// spotify.Client.
type Session interface {
	RecentTrackURIs(ctx context.Context, sinceMillis int64) ([]string, error)
	CreatePlaylist(ctx context.Context, userID, name, description string) (*spotify.Playlist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackURIs []string) error
	SetCoverImage(ctx context.Context, playlistID string, jpeg []byte) error
}

// SessionFactory builds a Session from a valid token.
type SessionFactory func(ctx context.Context, token *oauth2.Token) Session

// PosterView is the poster-agent surface consumed when building playlists.
type PosterView interface {
	Get(ctx context.Context) (*db.Poster, error)
	TourName(ctx context.Context) (string, error)
	BandNames(ctx context.Context) ([]string, error)
	TrackURIs(ctx context.Context) ([]string, error)
}

// PosterDirectory resolves poster ids to their agents.
type PosterDirectory interface {
	Poster(id string) PosterView
}

// Publisher is the outbound side of the bus.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Agent manages one listener. Methods are safe for concurrent use; the
// mutex guarantees sequential execution per user.
type Agent struct {
	id        string
	mu        sync.Mutex
	store     Store
	refresher Refresher
	sessions  SessionFactory
	posters   PosterDirectory
	blobs     blob.Store
	publisher Publisher
	brand     string
	logger    zerolog.Logger
}

// Initialize records the user's identity and appends the fresh credential
// to the vault. A returning user's identity is overwritten; the vault only
// grows.
func (a *Agent) Initialize(ctx context.Context, profile *spotify.Profile, token *oauth2.Token) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	user := &db.SpotifyUser{
		ID:             a.id,
		DisplayName:    profile.DisplayName,
		URL:            profile.URL,
		Email:          profile.Email,
		TokenExpiresAt: token.Expiry,
		LoggedInAt:     now,
	}
	if err := a.store.Upsert(ctx, user); err != nil {
		return fmt.Errorf("initializing user %s: %w", a.id, err)
	}
	if err := a.appendToken(ctx, token); err != nil {
		return err
	}
	a.logger.Info().Str("user_id", a.id).Msg("user initialized")
	return nil
}

func (a *Agent) appendToken(ctx context.Context, token *oauth2.Token) error {
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	entry := &db.Token{UserID: a.id, TokenJSON: tokenJSON}
	if token.RefreshToken != "" {
		rt := token.RefreshToken
		entry.RefreshToken = &rt
	}
	if err := a.store.AppendToken(ctx, entry); err != nil {
		return fmt.Errorf("storing token for user %s: %w", a.id, err)
	}
	return nil
}

// ValidToken returns a usable access token, refreshing through the vault
// when the stored one has expired. This is the sole refresh point; callers
// that get an error have no session to work with.
func (a *Agent) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validToken(ctx)
}

func (a *Agent) validToken(ctx context.Context) (*oauth2.Token, error) {
	entry, err := a.store.LatestToken(ctx, a.id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(entry.TokenJSON, &token); err != nil {
		return nil, fmt.Errorf("decoding stored token: %w", err)
	}
	if time.Until(token.Expiry) > expiryMargin {
		return &token, nil
	}

	refreshToken, err := a.store.LatestRefreshToken(ctx, a.id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}

	fresh, err := a.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("refreshing token for user %s: %w", a.id, err)
	}
	if err := a.appendToken(ctx, fresh); err != nil {
		return nil, err
	}
	if err := a.store.UpdateSession(ctx, a.id, fresh.Expiry, time.Now()); err != nil {
		return nil, err
	}
	a.logger.Debug().Str("user_id", a.id).Time("expires", fresh.Expiry).Msg("token refreshed")
	return fresh, nil
}

// RecentTrackURIs returns the user's play history since the given
// epoch-milliseconds timestamp.
func (a *Agent) RecentTrackURIs(ctx context.Context, sinceMillis int64) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	token, err := a.validToken(ctx)
	if err != nil {
		return nil, err
	}
	return a.sessions(ctx, token).RecentTrackURIs(ctx, sinceMillis)
}

// AddWatchedTrack appends to the watch ledger. Watching the same URI for
// another poster adds a second row; the ledger never shrinks.
func (a *Agent) AddWatchedTrack(ctx context.Context, uri, posterID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.AddWatchedTrack(ctx, a.id, uri, posterID)
}

// RunListenReconciliation fetches plays since the last completed run (or a
// ten-day lookback on the first run), matches them against the watch
// ledger, and attributes one listen per matching ledger row. Attributions
// are written before the run record: a crash in between re-scans the same
// window and may double-attribute, but never silently drops a listen.
func (a *Agent) RunListenReconciliation(ctx context.Context) (*db.ReconciliationRun, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	windowStart := time.Now().Add(-firstRunLookback)
	last, err := a.store.LatestRun(ctx, a.id)
	switch {
	case err == nil:
		windowStart = last.CompletedAt
	case errors.Is(err, db.ErrNotFound):
		// First run, keep the lookback.
	default:
		return nil, err
	}

	token, err := a.validToken(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := a.sessions(ctx, token).RecentTrackURIs(ctx, windowStart.UnixMilli())
	if err != nil {
		return nil, err
	}

	matches := 0
	for _, uri := range recent {
		watched, err := a.store.WatchedTracksByURI(ctx, a.id, uri)
		if err != nil {
			return nil, err
		}
		for _, w := range watched {
			if err := a.store.AppendListen(ctx, a.id, w.URI, w.PosterID); err != nil {
				return nil, err
			}
			attribution := bus.TrackListened{UserID: a.id, PosterID: w.PosterID, TrackURI: w.URI}
			if err := a.publisher.Publish(bus.TopicTrackListened, attribution); err != nil {
				a.logger.Warn().Err(err).Str("user_id", a.id).Str("poster_id", w.PosterID).
					Msg("publishing listen attribution")
			}
			matches++
		}
	}

	watchedURIs, err := a.store.WatchedTrackURIs(ctx, a.id)
	if err != nil {
		return nil, err
	}

	run := &db.ReconciliationRun{
		UserID:       a.id,
		TotalRecent:  len(recent),
		TotalMatches: matches,
		TotalWatched: len(watchedURIs),
	}
	if err := a.store.AppendRun(ctx, run); err != nil {
		return nil, err
	}
	a.logger.Info().Str("user_id", a.id).Int("recent", run.TotalRecent).
		Int("matches", run.TotalMatches).Msg("reconciliation completed")
	return run, nil
}

// ListRuns returns the user's reconciliation log, newest first.
func (a *Agent) ListRuns(ctx context.Context) ([]db.ReconciliationRun, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.ListRuns(ctx, a.id)
}

// CreatePlaylist builds the poster's playlist on the user's account: a
// branded title from the tour name, every resolved top track, a watch-ledger
// row per track, and a best-effort square cover from the normalized image.
// Calling it twice creates two playlists.
func (a *Agent) CreatePlaylist(ctx context.Context, posterID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.posters.Poster(posterID)
	tour, err := p.TourName(ctx)
	if err != nil {
		return "", fmt.Errorf("reading tour name for poster %s: %w", posterID, err)
	}
	bands, err := p.BandNames(ctx)
	if err != nil {
		return "", err
	}
	uris, err := p.TrackURIs(ctx)
	if err != nil {
		return "", err
	}

	name := a.brand + " / " + tour
	// Every extracted band is named, even ones the research workflow could
	// not resolve to tracks.
	description := "A " + a.brand + " playlist featuring songs from " + strings.Join(bands, ", ")

	token, err := a.validToken(ctx)
	if err != nil {
		return "", err
	}
	session := a.sessions(ctx, token)

	playlist, err := session.CreatePlaylist(ctx, a.id, name, description)
	if err != nil {
		return "", fmt.Errorf("creating playlist for poster %s: %w", posterID, err)
	}
	if err := session.AddTracksToPlaylist(ctx, playlist.ID, uris); err != nil {
		return "", err
	}
	for _, uri := range uris {
		if err := a.store.AddWatchedTrack(ctx, a.id, uri, posterID); err != nil {
			return "", err
		}
	}

	// Cover upload is cosmetic, never fail the playlist over it.
	if err := a.setCover(ctx, session, playlist.ID, p); err != nil {
		a.logger.Warn().Err(err).Str("user_id", a.id).Str("poster_id", posterID).
			Msg("setting playlist cover")
	}

	if err := a.store.AddPlaylist(ctx, a.id, playlist.URL, name); err != nil {
		return "", err
	}
	a.logger.Info().Str("user_id", a.id).Str("poster_id", posterID).
		Str("playlist_id", playlist.ID).Int("tracks", len(uris)).Msg("playlist created")
	return playlist.ID, nil
}

func (a *Agent) setCover(ctx context.Context, session Session, playlistID string, p PosterView) error {
	state, err := p.Get(ctx)
	if err != nil {
		return err
	}
	if state.CanonicalURL == nil || !blob.IsRef(*state.CanonicalURL) {
		return errors.New("no normalized image for cover")
	}
	bucket, key, err := blob.ParseRef(*state.CanonicalURL)
	if err != nil {
		return err
	}
	obj, err := a.blobs.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	jpeg, err := images.Transform(bytes.NewReader(obj.Data), images.Options{
		MaxWidth:  coverMaxEdge,
		MaxHeight: coverMaxEdge,
		Format:    images.JPEG,
	})
	if err != nil {
		return err
	}
	return session.SetCoverImage(ctx, playlistID, jpeg)
}

// ListPlaylists returns the playlists created on the user's behalf.
func (a *Agent) ListPlaylists(ctx context.Context) ([]db.UserPlaylist, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.ListPlaylists(ctx, a.id)
}

// Get returns the user's identity row.
func (a *Agent) Get(ctx context.Context) (*db.SpotifyUser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Get(ctx, a.id)
}

// Destroy removes every row the agent owns.
func (a *Agent) Destroy(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.DeleteAll(ctx, a.id); err != nil {
		return err
	}
	a.logger.Info().Str("user_id", a.id).Msg("user destroyed")
	return nil
}
