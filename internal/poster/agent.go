// Package poster implements the per-poster agent. Each agent owns one
// poster's rows exclusively and serializes all access through a
// per-instance mutex. State changes are announced on the bus as
// poster.changed hints; delivery is advisory and never blocks a mutation.
package poster

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"bandaid/internal/ai"
	"bandaid/internal/blob"
	"bandaid/internal/bus"
	"bandaid/internal/db"
)

// Store is the poster persistence capability, implemented by
// db.PosterRepository.
type Store interface {
	CreatePending(ctx context.Context, id, uploadedURL string) error
	Get(ctx context.Context, id string) (*db.Poster, error)
	CommitExtraction(ctx context.Context, id, slug, tourName string, bandNames []string, events []db.Event) error
	SetSlug(ctx context.Context, id, slug string) error
	SetCanonicalURL(ctx context.Context, id, url string) error
	UpsertArtistSummary(ctx context.Context, summary *db.ArtistSummary) error
	ListArtistSummaries(ctx context.Context, posterID string) ([]db.ArtistSummary, error)
	IncrementListener(ctx context.Context, posterID, spotifyUserID string) (int, error)
	Delete(ctx context.Context, id string) error
}

// Extractor reads a poster image and returns structured metadata.
type Extractor interface {
	ExtractPosterMetadata(ctx context.Context, imageURLOrData string) (*ai.PosterMetadata, error)
}

// Publisher is the outbound side of the bus.
type Publisher interface {
	Publish(topic string, payload any) error
}

// PublicHosts maps internal bucket references to publicly reachable hosts.
type PublicHosts struct {
	Uploads string
	Posters string
}

// Agent manages one poster. Methods are safe for concurrent use; the mutex
// guarantees sequential execution per poster.
type Agent struct {
	id        string
	mu        sync.Mutex
	store     Store
	blobs     blob.Store
	extractor Extractor
	publisher Publisher
	hosts     PublicHosts
	logger    zerolog.Logger
}

// Initialize records the submission and runs vision extraction over the
// source image. A source blob that does not exist yet is skipped without
// error: the upload event may outrun the object write, and the poster stays
// pending until resubmitted. Extraction fills metadata exactly once; the
// slug is never overwritten by a re-run.
func (a *Agent) Initialize(ctx context.Context, sourceURL string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.CreatePending(ctx, a.id, sourceURL); err != nil {
		return fmt.Errorf("creating poster: %w", err)
	}
	a.publishChanged()

	imageRef, err := a.resolveImageRef(ctx, sourceURL)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			a.logger.Warn().Str("poster_id", a.id).Str("url", sourceURL).
				Msg("source image not in store yet, skipping extraction")
			return nil
		}
		return err
	}

	meta, err := a.extractor.ExtractPosterMetadata(ctx, imageRef)
	if err != nil {
		return fmt.Errorf("extracting poster %s: %w", a.id, err)
	}

	events := make([]db.Event, len(meta.Events))
	for i, e := range meta.Events {
		events[i] = db.Event(e)
	}
	if err := a.store.CommitExtraction(ctx, a.id, meta.Slug, meta.TourName, meta.BandNames, events); err != nil {
		return fmt.Errorf("committing extraction for poster %s: %w", a.id, err)
	}
	a.publishChanged()

	a.logger.Info().Str("poster_id", a.id).Str("slug", meta.Slug).
		Strs("bands", meta.BandNames).Msg("poster extracted")
	return nil
}

// resolveImageRef turns the source URL into something the vision model can
// fetch: internal references become base64 data URLs, external URLs pass
// through.
func (a *Agent) resolveImageRef(ctx context.Context, sourceURL string) (string, error) {
	if !blob.IsRef(sourceURL) {
		return sourceURL, nil
	}
	bucket, key, err := blob.ParseRef(sourceURL)
	if err != nil {
		return "", err
	}
	obj, err := a.blobs.Get(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(obj.Data), nil
}

// Get returns the poster's current state.
func (a *Agent) Get(ctx context.Context) (*db.Poster, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Get(ctx, a.id)
}

// Slug returns the extracted slug, or "" while the poster is pending.
func (a *Agent) Slug(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.store.Get(ctx, a.id)
	if err != nil {
		return "", err
	}
	if p.Slug == nil {
		return "", nil
	}
	return *p.Slug, nil
}

// SetSlug overwrites the slug.
func (a *Agent) SetSlug(ctx context.Context, slug string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.SetSlug(ctx, a.id, slug); err != nil {
		return err
	}
	a.publishChanged()
	return nil
}

// BandNames returns the extracted band names, most prominent first.
func (a *Agent) BandNames(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.store.Get(ctx, a.id)
	if err != nil {
		return nil, err
	}
	return p.BandNames, nil
}

// TourName returns the extracted tour name, or "" while pending.
func (a *Agent) TourName(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.store.Get(ctx, a.id)
	if err != nil {
		return "", err
	}
	if p.TourName == nil {
		return "", nil
	}
	return *p.TourName, nil
}

// UploadedImageURL returns the original source reference.
func (a *Agent) UploadedImageURL(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.store.Get(ctx, a.id)
	if err != nil {
		return "", err
	}
	return p.UploadedURL, nil
}

// StorageKey returns the object key of the uploaded image, or "" when the
// source is an external URL.
func (a *Agent) StorageKey(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.store.Get(ctx, a.id)
	if err != nil {
		return "", err
	}
	if !blob.IsRef(p.UploadedURL) {
		return "", nil
	}
	_, key, err := blob.ParseRef(p.UploadedURL)
	if err != nil {
		return "", err
	}
	return key, nil
}

// PublicPosterURL returns the canonical normalized image URL when one
// exists, otherwise the public form of the uploaded original.
func (a *Agent) PublicPosterURL(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, err := a.store.Get(ctx, a.id)
	if err != nil {
		return "", err
	}
	if p.CanonicalURL != nil && *p.CanonicalURL != "" {
		return a.publicURL(*p.CanonicalURL), nil
	}
	return a.publicURL(p.UploadedURL), nil
}

// publicURL substitutes the public host for internal bucket references.
func (a *Agent) publicURL(ref string) string {
	if !blob.IsRef(ref) {
		return ref
	}
	bucket, key, err := blob.ParseRef(ref)
	if err != nil {
		return ref
	}
	switch bucket {
	case blob.BucketUploads:
		return "https://" + a.hosts.Uploads + "/" + key
	case blob.BucketPosters:
		return "https://" + a.hosts.Posters + "/" + key
	default:
		return ref
	}
}

// SetCanonicalURL records the normalized image reference committed by the
// normalization workflow.
func (a *Agent) SetCanonicalURL(ctx context.Context, url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.SetCanonicalURL(ctx, a.id, url); err != nil {
		return err
	}
	a.publishChanged()
	return nil
}

// AddArtistSummary appends one band's enrichment. A summary for a band name
// already present replaces the old one.
func (a *Agent) AddArtistSummary(ctx context.Context, summary *db.ArtistSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	summary.PosterID = a.id
	if err := a.store.UpsertArtistSummary(ctx, summary); err != nil {
		return err
	}
	a.publishChanged()
	return nil
}

// ArtistSummaries returns the enrichment rows in band order.
func (a *Agent) ArtistSummaries(ctx context.Context) ([]db.ArtistSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.ListArtistSummaries(ctx, a.id)
}

// TrackURIs flattens the resolved summaries' top tracks in band order.
// Bands without resolved tracks contribute nothing.
func (a *Agent) TrackURIs(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	summaries, err := a.store.ListArtistSummaries(ctx, a.id)
	if err != nil {
		return nil, err
	}
	var uris []string
	for _, s := range summaries {
		uris = append(uris, s.TopTrackURIs...)
	}
	return uris, nil
}

// TrackListener credits one listen to the given user and returns the new
// poster-wide total.
func (a *Agent) TrackListener(ctx context.Context, spotifyUserID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	total, err := a.store.IncrementListener(ctx, a.id, spotifyUserID)
	if err != nil {
		return 0, err
	}
	a.publishChanged()
	a.logger.Debug().Str("poster_id", a.id).Str("user_id", spotifyUserID).
		Int("listen_count", total).Msg("listen recorded")
	return total, nil
}

// Destroy removes the poster and all derived rows.
func (a *Agent) Destroy(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.Delete(ctx, a.id); err != nil {
		return err
	}
	a.publishChanged()
	return nil
}

func (a *Agent) publishChanged() {
	if err := a.publisher.Publish(bus.TopicPosterChanged, bus.PosterChanged{PosterID: a.id}); err != nil {
		a.logger.Warn().Err(err).Str("poster_id", a.id).Msg("publishing change hint")
	}
}
