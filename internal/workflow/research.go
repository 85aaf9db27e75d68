package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"bandaid/internal/db"
	"bandaid/internal/spotify"
)

const (
	topTrackLimit  = 3
	topTrackMarket = "US"
)

// Catalog is the application-credential Spotify surface used for lookups.
type Catalog interface {
	SearchArtist(ctx context.Context, name string) (*spotify.Artist, error)
	TopTrackURIs(ctx context.Context, artistID, market string, limit int) ([]string, error)
}

// Scraper pulls about text from public artist pages.
type Scraper interface {
	AboutText(ctx context.Context, url string) (string, error)
}

// Summarizer condenses artist descriptions.
type Summarizer interface {
	Summarize(ctx context.Context, longText string) (string, error)
}

// PosterAgent is the poster surface the workflows drive.
type PosterAgent interface {
	BandNames(ctx context.Context) ([]string, error)
	AddArtistSummary(ctx context.Context, summary *db.ArtistSummary) error
	UploadedImageURL(ctx context.Context) (string, error)
	Slug(ctx context.Context) (string, error)
	SetCanonicalURL(ctx context.Context, url string) error
}

// Posters resolves poster ids to their agents.
type Posters interface {
	Get(id string) PosterAgent
}

// Researcher enriches a poster's bands: artist resolution, top tracks,
// about-text scraping, and summarization.
type Researcher struct {
	catalog    Catalog
	scraper    Scraper
	summarizer Summarizer
	posters    Posters
	steps      StepLog
	logger     zerolog.Logger
}

// NewResearcher wires the research workflow.
func NewResearcher(catalog Catalog, scraper Scraper, summarizer Summarizer, posters Posters, steps StepLog, logger zerolog.Logger) *Researcher {
	return &Researcher{
		catalog:    catalog,
		scraper:    scraper,
		summarizer: summarizer,
		posters:    posters,
		steps:      steps,
		logger:     logger,
	}
}

// Run researches every band on the poster. Bands fail independently: an
// error on one is logged and the rest still run.
func (r *Researcher) Run(ctx context.Context, workflowID, posterID string) error {
	agent := r.posters.Get(posterID)
	run := NewRun(workflowID, r.steps)

	bands, err := Do(ctx, run, "band-names", func(ctx context.Context) ([]string, error) {
		return agent.BandNames(ctx)
	})
	if err != nil {
		return fmt.Errorf("reading bands for poster %s: %w", posterID, err)
	}

	for i, band := range bands {
		if err := r.researchBand(ctx, run, agent, i, band); err != nil {
			r.logger.Warn().Err(err).Str("poster_id", posterID).Str("band", band).
				Str("workflow_id", workflowID).Msg("band research failed")
		}
	}
	return nil
}

func (r *Researcher) researchBand(ctx context.Context, run *Run, agent PosterAgent, position int, band string) error {
	prefix := fmt.Sprintf("band-%d-", position)

	// A search miss is a terminal result for the band, not an error: the
	// nil is memoized so a replay skips it too.
	artist, err := Do(ctx, run, prefix+"search", func(ctx context.Context) (*spotify.Artist, error) {
		found, err := r.catalog.SearchArtist(ctx, band)
		if errors.Is(err, spotify.ErrArtistNotFound) {
			return nil, nil
		}
		return found, err
	})
	if err != nil {
		return err
	}
	if artist == nil {
		r.logger.Debug().Str("band", band).Msg("no artist match, skipping band")
		return nil
	}

	summary := &db.ArtistSummary{
		Position:   position,
		Name:       band,
		URI:        artist.URI,
		SpotifyURL: artist.URL,
		Genres:     artist.Genres,
	}
	if _, err := Do(ctx, run, prefix+"initial-summary", func(ctx context.Context) (bool, error) {
		return true, agent.AddArtistSummary(ctx, summary)
	}); err != nil {
		return err
	}

	uris, err := Do(ctx, run, prefix+"top-tracks", func(ctx context.Context) ([]string, error) {
		return r.catalog.TopTrackURIs(ctx, artist.ID, topTrackMarket, topTrackLimit)
	})
	if err != nil {
		return err
	}

	// Scraping is best-effort; a fetch failure memoizes as empty text.
	about, err := Do(ctx, run, prefix+"about", func(ctx context.Context) (string, error) {
		text, err := r.scraper.AboutText(ctx, artist.URL)
		if err != nil {
			r.logger.Debug().Err(err).Str("band", band).Msg("about scrape failed")
			return "", nil
		}
		return text, nil
	})
	if err != nil {
		return err
	}

	var description *string
	if about != "" {
		condensed, err := Do(ctx, run, prefix+"summarize", func(ctx context.Context) (string, error) {
			return r.summarizer.Summarize(ctx, about)
		})
		if err != nil {
			return err
		}
		if condensed != "" {
			description = &condensed
		}
	}

	summary.Description = description
	summary.TopTrackURIs = uris
	if _, err := Do(ctx, run, prefix+"commit", func(ctx context.Context) (bool, error) {
		return true, agent.AddArtistSummary(ctx, summary)
	}); err != nil {
		return err
	}
	return nil
}
