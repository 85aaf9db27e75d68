// Package orchestrator implements the coordination singleton: it owns the
// submission catalog and the cached poster summary projection, fans
// submissions out to poster agents and workflows, and consumes the agents'
// asynchronous hints from the bus.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bandaid/internal/bus"
	"bandaid/internal/db"
)

// Catalog is the submission persistence capability, implemented by
// db.CatalogRepository.
type Catalog interface {
	CreateSubmission(ctx context.Context, id, url string) error
	SetSubmissionSlug(ctx context.Context, id, slug string) error
	SubmissionIDBySlug(ctx context.Context, slug string) (string, error)
	SubmissionIDByURL(ctx context.Context, url string) (string, error)
	ListSubmissions(ctx context.Context) ([]db.PosterSubmission, error)
	DeleteAllSubmissions(ctx context.Context) error
	CreatePlaylistLink(ctx context.Context, link *db.PlaylistLink) error
}

// PosterAgent is the poster-agent surface the Orchestrator drives.
type PosterAgent interface {
	Initialize(ctx context.Context, sourceURL string) error
	Slug(ctx context.Context) (string, error)
	PublicPosterURL(ctx context.Context) (string, error)
	TrackListener(ctx context.Context, spotifyUserID string) (int, error)
	Destroy(ctx context.Context) error
}

// PosterAgents resolves poster ids to their agents.
type PosterAgents interface {
	Get(id string) PosterAgent
	Evict(id string)
}

// UserAgent is the user-agent surface the Orchestrator drives.
type UserAgent interface {
	CreatePlaylist(ctx context.Context, posterID string) (string, error)
}

// UserAgents resolves Spotify user ids to their agents.
type UserAgents interface {
	Get(id string) UserAgent
}

// Publisher is the outbound side of the bus.
type Publisher interface {
	Publish(topic string, payload any) error
}

// PosterSummary is one entry of the cached listing projection. It is a
// convenience view: the catalog plus poster rows can always rebuild it.
type PosterSummary struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	ImageURL string `json:"imageUrl"`
}

// Orchestrator coordinates submissions, playlists, and listen attributions.
type Orchestrator struct {
	catalog   Catalog
	posters   PosterAgents
	users     UserAgents
	publisher Publisher
	logger    zerolog.Logger

	mu        sync.Mutex
	summaries []PosterSummary
	loaded    bool
}

// New creates the Orchestrator singleton.
func New(catalog Catalog, posters PosterAgents, users UserAgents, publisher Publisher, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		catalog:   catalog,
		posters:   posters,
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

// SubmitPoster registers a new poster and runs extraction synchronously.
// A URL already in the catalog is skipped, which makes queue redelivery
// harmless. Extraction failure is tolerated: the submission stays with an
// empty slug and no workflows are scheduled. Returns whether a new poster
// was created.
func (o *Orchestrator) SubmitPoster(ctx context.Context, sourceURL string) (bool, error) {
	if existing, err := o.catalog.SubmissionIDByURL(ctx, sourceURL); err == nil {
		o.logger.Debug().Str("poster_id", existing).Str("url", sourceURL).
			Msg("url already submitted, skipping")
		return false, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return false, err
	}

	id := uuid.NewString()
	if err := o.catalog.CreateSubmission(ctx, id, sourceURL); err != nil {
		return false, fmt.Errorf("recording submission: %w", err)
	}

	agent := o.posters.Get(id)
	if err := agent.Initialize(ctx, sourceURL); err != nil {
		o.logger.Warn().Err(err).Str("poster_id", id).Str("url", sourceURL).
			Msg("extraction failed, poster stays pending")
		o.appendSummary(ctx, id)
		return true, nil
	}

	slug, err := agent.Slug(ctx)
	if err != nil {
		return true, err
	}
	if slug != "" {
		if err := o.catalog.SetSubmissionSlug(ctx, id, slug); err != nil {
			return true, err
		}
	}
	o.appendSummary(ctx, id)

	for _, kind := range []string{bus.WorkflowResearch, bus.WorkflowNormalize} {
		schedule := bus.ScheduleWorkflow{
			Kind:       kind,
			WorkflowID: uuid.NewString(),
			PosterID:   id,
		}
		if err := o.publisher.Publish(bus.TopicWorkflowSchedule, schedule); err != nil {
			return true, fmt.Errorf("scheduling %s workflow: %w", kind, err)
		}
	}

	o.logger.Info().Str("poster_id", id).Str("slug", slug).Msg("poster submitted")
	return true, nil
}

// appendSummary adds the poster to the cached projection.
func (o *Orchestrator) appendSummary(ctx context.Context, posterID string) {
	summary, err := o.buildSummary(ctx, posterID)
	if err != nil {
		o.logger.Warn().Err(err).Str("poster_id", posterID).Msg("building summary")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.summaries {
		if o.summaries[i].ID == posterID {
			o.summaries[i] = summary
			return
		}
	}
	o.summaries = append(o.summaries, summary)
}

func (o *Orchestrator) buildSummary(ctx context.Context, posterID string) (PosterSummary, error) {
	agent := o.posters.Get(posterID)
	slug, err := agent.Slug(ctx)
	if err != nil {
		return PosterSummary{}, err
	}
	imageURL, err := agent.PublicPosterURL(ctx)
	if err != nil {
		return PosterSummary{}, err
	}
	return PosterSummary{ID: posterID, Slug: slug, ImageURL: imageURL}, nil
}

// PosterSummaries returns the cached listing, rebuilding it from the
// catalog on first use.
func (o *Orchestrator) PosterSummaries(ctx context.Context) ([]PosterSummary, error) {
	o.mu.Lock()
	loaded := o.loaded
	o.mu.Unlock()

	if !loaded {
		if err := o.rebuildSummaries(ctx); err != nil {
			return nil, err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]PosterSummary(nil), o.summaries...), nil
}

func (o *Orchestrator) rebuildSummaries(ctx context.Context) error {
	subs, err := o.catalog.ListSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("listing submissions: %w", err)
	}
	summaries := make([]PosterSummary, 0, len(subs))
	for _, sub := range subs {
		summary, err := o.buildSummary(ctx, sub.ID)
		if err != nil {
			o.logger.Warn().Err(err).Str("poster_id", sub.ID).Msg("rebuilding summary")
			continue
		}
		summaries = append(summaries, summary)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = summaries
	o.loaded = true
	return nil
}

// OnPosterChange refreshes the changed poster's cached summary. The hint is
// advisory; a missed one only leaves the projection briefly stale.
func (o *Orchestrator) OnPosterChange(ctx context.Context, posterID string) {
	o.mu.Lock()
	found := false
	for i := range o.summaries {
		if o.summaries[i].ID == posterID {
			found = true
			break
		}
	}
	o.mu.Unlock()
	if !found {
		return
	}
	o.appendSummary(ctx, posterID)
}

// OnTrackListen forwards a listen attribution to the poster's counter.
func (o *Orchestrator) OnTrackListen(ctx context.Context, userID, posterID string) error {
	_, err := o.posters.Get(posterID).TrackListener(ctx, userID)
	return err
}

// CreatePlaylistForSpotifyUser builds the poster's playlist on the user's
// account and records the link. Not idempotent: every call creates a new
// playlist.
func (o *Orchestrator) CreatePlaylistForSpotifyUser(ctx context.Context, posterID, spotifyUserID string) (string, error) {
	playlistID, err := o.users.Get(spotifyUserID).CreatePlaylist(ctx, posterID)
	if err != nil {
		return "", err
	}
	link := &db.PlaylistLink{
		ID:            uuid.NewString(),
		PlaylistID:    playlistID,
		PosterID:      posterID,
		SpotifyUserID: spotifyUserID,
	}
	if err := o.catalog.CreatePlaylistLink(ctx, link); err != nil {
		return "", fmt.Errorf("recording playlist link: %w", err)
	}
	return playlistID, nil
}

// PosterIDFromSlug resolves a slug to its poster id.
func (o *Orchestrator) PosterIDFromSlug(ctx context.Context, slug string) (string, error) {
	o.mu.Lock()
	for _, s := range o.summaries {
		if s.Slug == slug && slug != "" {
			o.mu.Unlock()
			return s.ID, nil
		}
	}
	o.mu.Unlock()
	return o.catalog.SubmissionIDBySlug(ctx, slug)
}

// DeleteAllPosters destroys every poster best-effort, then clears the
// catalog and the cached projection. A poster that fails to destroy is
// logged and skipped.
func (o *Orchestrator) DeleteAllPosters(ctx context.Context) error {
	subs, err := o.catalog.ListSubmissions(ctx)
	if err != nil {
		return fmt.Errorf("listing submissions: %w", err)
	}
	for _, sub := range subs {
		if err := o.posters.Get(sub.ID).Destroy(ctx); err != nil {
			o.logger.Warn().Err(err).Str("poster_id", sub.ID).Msg("destroying poster")
			continue
		}
		o.posters.Evict(sub.ID)
	}
	if err := o.catalog.DeleteAllSubmissions(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	o.summaries = nil
	o.loaded = true
	o.mu.Unlock()

	o.logger.Info().Int("posters", len(subs)).Msg("all posters deleted")
	return nil
}

// Start consumes the agents' hints until ctx is canceled. Messages are
// acked after handling. An attribution for a poster that no longer exists
// is dropped; a transiently failing one is nacked for redelivery after a
// short sleep.
func (o *Orchestrator) Start(ctx context.Context, b *bus.Bus) error {
	changes, err := b.Subscribe(ctx, bus.TopicPosterChanged)
	if err != nil {
		return err
	}
	listens, err := b.Subscribe(ctx, bus.TopicTrackListened)
	if err != nil {
		return err
	}

	go func() {
		for msg := range changes {
			var hint bus.PosterChanged
			if err := bus.Decode(msg, &hint); err != nil {
				o.logger.Warn().Err(err).Msg("decoding change hint")
				msg.Ack()
				continue
			}
			o.OnPosterChange(ctx, hint.PosterID)
			msg.Ack()
		}
	}()

	go func() {
		for msg := range listens {
			var attribution bus.TrackListened
			if err := bus.Decode(msg, &attribution); err != nil {
				o.logger.Warn().Err(err).Msg("decoding listen attribution")
				msg.Ack()
				continue
			}
			if err := o.OnTrackListen(ctx, attribution.UserID, attribution.PosterID); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					// The poster was deleted under the attribution.
					o.logger.Debug().Str("poster_id", attribution.PosterID).
						Msg("dropping listen attribution for missing poster")
					msg.Ack()
					continue
				}
				o.logger.Warn().Err(err).Str("poster_id", attribution.PosterID).
					Msg("applying listen attribution, retrying")
				time.Sleep(time.Second)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()

	return nil
}
