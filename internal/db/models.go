package db

import (
	"time"
)

// PosterSubmission is one row of the Orchestrator's catalog.
type PosterSubmission struct {
	ID        string
	URL       string
	Slug      *string // nullable until extraction succeeds
	CreatedAt time.Time
}

// PlaylistLink records a playlist created for a poster and user.
type PlaylistLink struct {
	ID            string
	PlaylistID    string
	PosterID      string
	SpotifyUserID string
	CreatedAt     time.Time
}

// Event is one concert occurrence extracted from a poster.
type Event struct {
	Venue      string `json:"venue"`
	Location   string `json:"location"`
	Date       string `json:"date"`
	IsUpcoming bool   `json:"isUpcoming"`
}

// Poster is the authoritative state for one poster.
//
// A freshly submitted poster has only ID and UploadedURL; extraction fills
// Slug, TourName, BandNames, and Events, and the enrichment workflows fill
// CanonicalURL and the artist summaries.
type Poster struct {
	ID           string
	UploadedURL  string
	CanonicalURL *string // nullable until normalization commits
	Slug         *string // nullable until extraction commits; set at most once
	TourName     *string
	BandNames    []string
	Events       []Event
	ListenCount  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ArtistSummary is the per-band enrichment appended by the research
// workflow. Unresolved bands have no row.
type ArtistSummary struct {
	PosterID      string
	Position      int
	Name          string
	URI           string
	SpotifyURL    string
	Genres        []string
	Description   *string  // nullable - summarization is best-effort
	TopTrackURIs  []string // nil until top tracks resolved
}

// SpotifyUser is one listener's identity and session.
type SpotifyUser struct {
	ID             string
	DisplayName    string
	URL            string
	Email          string
	TokenExpiresAt time.Time
	LoggedInAt     time.Time
}

// Token is one append-only credential-vault entry. The newest row is
// authoritative.
type Token struct {
	ID           int64
	UserID       string
	TokenJSON    []byte
	RefreshToken *string // nullable - refresh grants may omit it
	CreatedAt    time.Time
}

// WatchedTrack maps a track to the poster that justifies attributing a
// listen for this user.
type WatchedTrack struct {
	ID        int64
	UserID    string
	URI       string
	PosterID  string
	CreatedAt time.Time
}

// TrackListen is one realized watched-track match.
type TrackListen struct {
	ID        int64
	UserID    string
	URI       string
	PosterID  string
	CreatedAt time.Time
}

// ReconciliationRun records one listen-reconciliation pass. The newest
// CompletedAt is the next run's window start.
type ReconciliationRun struct {
	ID           int64
	UserID       string
	TotalRecent  int
	TotalMatches int
	TotalWatched int
	CompletedAt  time.Time
}

// UserPlaylist is a playlist created on behalf of the user.
type UserPlaylist struct {
	ID        int64
	UserID    string
	URL       string
	Title     string
	CreatedAt time.Time
}

// WorkflowStep is one memoized step result of a durable workflow run.
type WorkflowStep struct {
	WorkflowID  string
	StepName    string
	ResultJSON  []byte
	CompletedAt time.Time
}
