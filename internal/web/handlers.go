package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"bandaid/internal/db"
	"bandaid/internal/orchestrator"
	"bandaid/internal/spotify"
	"bandaid/internal/spotifyuser"
)

// Authenticator is the OAuth surface, implemented by
// spotify.Authenticator.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, state string, r *http.Request) (*oauth2.Token, error)
}

// ProfileFetcher resolves a token to the Spotify profile that owns it.
type ProfileFetcher func(ctx context.Context, token *oauth2.Token) (*spotify.Profile, error)

// UserAgent is the user-agent surface the handlers drive.
type UserAgent interface {
	Initialize(ctx context.Context, profile *spotify.Profile, token *oauth2.Token) error
	RunListenReconciliation(ctx context.Context) (*db.ReconciliationRun, error)
	ListRuns(ctx context.Context) ([]db.ReconciliationRun, error)
	Destroy(ctx context.Context) error
}

// Users resolves Spotify user ids to their agents.
type Users interface {
	Get(id string) UserAgent
	Evict(id string)
}

// Coordinator is the Orchestrator surface the handlers drive.
type Coordinator interface {
	SubmitPoster(ctx context.Context, sourceURL string) (bool, error)
	PosterSummaries(ctx context.Context) ([]orchestrator.PosterSummary, error)
	DeleteAllPosters(ctx context.Context) error
	CreatePlaylistForSpotifyUser(ctx context.Context, posterID, spotifyUserID string) (string, error)
}

// Handlers contains the HTTP handlers.
type Handlers struct {
	auth         Authenticator
	fetchProfile ProfileFetcher
	users        Users
	coordinator  Coordinator
	sessions     *SessionStore
	logger       zerolog.Logger
}

// NewHandlers creates a Handlers instance. A nil fetchProfile defaults to a
// live profile lookup with the exchanged token.
func NewHandlers(auth Authenticator, fetchProfile ProfileFetcher, users Users, coordinator Coordinator, sessions *SessionStore, logger zerolog.Logger) *Handlers {
	if fetchProfile == nil {
		fetchProfile = func(ctx context.Context, token *oauth2.Token) (*spotify.Profile, error) {
			return spotify.NewWithToken(ctx, token).CurrentProfile(ctx)
		}
	}
	return &Handlers{
		auth:         auth,
		fetchProfile: fetchProfile,
		users:        users,
		coordinator:  coordinator,
		sessions:     sessions,
		logger:       logger,
	}
}

// Login initiates the Spotify OAuth flow (GET /spotify/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})
	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback (GET /spotify/callback): state check,
// code exchange, profile fetch, user-agent bootstrap, login cookie.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, fmt.Sprintf("Spotify auth error: %s", errMsg), http.StatusBadRequest)
		return
	}

	token, err := h.auth.Exchange(r.Context(), stateCookie.Value, r)
	if err != nil {
		h.logger.Warn().Err(err).Msg("exchanging oauth code")
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	profile, err := h.fetchProfile(r.Context(), token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("fetching profile")
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	if err := h.users.Get(profile.ID).Initialize(r.Context(), profile, token); err != nil {
		h.logger.Error().Err(err).Str("user_id", profile.ID).Msg("initializing user")
		http.Error(w, "Failed to initialize user", http.StatusInternalServerError)
		return
	}

	session, err := h.sessions.Create(profile.ID)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	h.sessions.SetCookie(w, session)
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// RemoveUser tears down a user's agent and state (GET /spotify/remove/{userID}).
func (h *Handlers) RemoveUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.users.Get(userID).Destroy(r.Context()); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("destroying user")
		http.Error(w, "Failed to remove user", http.StatusInternalServerError)
		return
	}
	h.users.Evict(userID)
	h.sessions.DeleteUser(userID)
	h.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type submitPosterRequest struct {
	URL string `json:"url"`
}

// SubmitPoster registers a poster by source URL (POST /api/posters).
func (h *Handlers) SubmitPoster(w http.ResponseWriter, r *http.Request) {
	var req submitPosterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.coordinator.SubmitPoster(r.Context(), req.URL)
	if err != nil {
		h.logger.Error().Err(err).Str("url", req.URL).Msg("submitting poster")
		http.Error(w, "Failed to submit poster", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"created": created})
}

// ListPosters returns the cached poster summaries (GET /api/posters).
func (h *Handlers) ListPosters(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.coordinator.PosterSummaries(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("listing posters")
		http.Error(w, "Failed to list posters", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []orchestrator.PosterSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// DeleteAllPosters removes every poster (DELETE /api/posters).
func (h *Handlers) DeleteAllPosters(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.DeleteAllPosters(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("deleting posters")
		http.Error(w, "Failed to delete posters", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// CreatePlaylist builds the poster's playlist for the logged-in user
// (POST /api/posters/{posterID}/playlist).
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		http.Error(w, "Not logged in", http.StatusUnauthorized)
		return
	}
	posterID := chi.URLParam(r, "posterID")

	playlistID, err := h.coordinator.CreatePlaylistForSpotifyUser(r.Context(), posterID, session.UserID)
	if err != nil {
		if errors.Is(err, spotifyuser.ErrNoToken) {
			http.Error(w, "Not logged in", http.StatusUnauthorized)
			return
		}
		h.logger.Error().Err(err).Str("poster_id", posterID).
			Str("user_id", session.UserID).Msg("creating playlist")
		http.Error(w, "Failed to create playlist", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"playlistId": playlistID})
}

// Reconcile runs listen reconciliation for the user
// (POST /api/users/{userID}/reconcile).
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	run, err := h.users.Get(userID).RunListenReconciliation(r.Context())
	if err != nil {
		if errors.Is(err, spotifyuser.ErrNoToken) {
			http.Error(w, "User has no credentials", http.StatusUnauthorized)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("reconciling listens")
		http.Error(w, "Failed to reconcile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reconciliationRunJSON(run))
}

// ListReconciliations returns the user's run log
// (GET /api/users/{userID}/reconciliations).
func (h *Handlers) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	runs, err := h.users.Get(userID).ListRuns(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("listing runs")
		http.Error(w, "Failed to list reconciliations", http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, len(runs))
	for i := range runs {
		out[i] = reconciliationRunJSON(&runs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func reconciliationRunJSON(run *db.ReconciliationRun) map[string]any {
	return map[string]any{
		"totalRecent":  run.TotalRecent,
		"totalMatches": run.TotalMatches,
		"totalWatched": run.TotalWatched,
		"completedAt":  run.CompletedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
