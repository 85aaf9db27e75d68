package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"bandaid/internal/db"
	"bandaid/internal/spotify"
)

// fakeCatalog maps band names to canned artists and top tracks.
type fakeCatalog struct {
	artists map[string]*spotify.Artist
	tracks  map[string][]string
	search  []string
}

func (c *fakeCatalog) SearchArtist(_ context.Context, name string) (*spotify.Artist, error) {
	c.search = append(c.search, name)
	artist, ok := c.artists[name]
	if !ok {
		return nil, spotify.ErrArtistNotFound
	}
	return artist, nil
}

func (c *fakeCatalog) TopTrackURIs(_ context.Context, artistID, _ string, limit int) ([]string, error) {
	uris := c.tracks[artistID]
	if limit > 0 && len(uris) > limit {
		uris = uris[:limit]
	}
	return uris, nil
}

type fakeScraper struct {
	about map[string]string
	err   error
}

func (s *fakeScraper) AboutText(_ context.Context, url string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.about[url], nil
}

type fakeSummarizer struct {
	err   error
	calls []string
}

func (s *fakeSummarizer) Summarize(_ context.Context, longText string) (string, error) {
	s.calls = append(s.calls, longText)
	if s.err != nil {
		return "", s.err
	}
	return "condensed: " + longText, nil
}

// fakeWorkflowPoster implements PosterAgent for workflow tests.
type fakeWorkflowPoster struct {
	mu        sync.Mutex
	bands     []string
	slug      string
	uploaded  string
	canonical string
	summaries map[string]db.ArtistSummary
}

func (p *fakeWorkflowPoster) BandNames(_ context.Context) ([]string, error) { return p.bands, nil }

func (p *fakeWorkflowPoster) AddArtistSummary(_ context.Context, summary *db.ArtistSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.summaries == nil {
		p.summaries = make(map[string]db.ArtistSummary)
	}
	p.summaries[summary.Name] = *summary
	return nil
}

func (p *fakeWorkflowPoster) UploadedImageURL(_ context.Context) (string, error) {
	return p.uploaded, nil
}

func (p *fakeWorkflowPoster) Slug(_ context.Context) (string, error) { return p.slug, nil }

func (p *fakeWorkflowPoster) SetCanonicalURL(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canonical = url
	return nil
}

type fakePosters struct {
	agents map[string]*fakeWorkflowPoster
}

func (f *fakePosters) Get(id string) PosterAgent { return f.agents[id] }

func TestResearcherEnrichesBands(t *testing.T) {
	catalog := &fakeCatalog{
		artists: map[string]*spotify.Artist{
			"Beastie Boys": {
				ID:     "artist-bb",
				Name:   "Beastie Boys",
				URI:    "spotify:artist:bb",
				URL:    "https://open.spotify.com/artist/bb",
				Genres: []string{"hip hop"},
			},
		},
		tracks: map[string][]string{
			"artist-bb": {"spotify:track:1", "spotify:track:2", "spotify:track:3", "spotify:track:4"},
		},
	}
	scraper := &fakeScraper{about: map[string]string{
		"https://open.spotify.com/artist/bb": "A long artist biography.",
	}}
	summarizer := &fakeSummarizer{}
	posterAgent := &fakeWorkflowPoster{bands: []string{"Beastie Boys", "Nobody Knows Them"}}
	posters := &fakePosters{agents: map[string]*fakeWorkflowPoster{"p1": posterAgent}}

	r := NewResearcher(catalog, scraper, summarizer, posters, newMemStepLog(), zerolog.Nop())
	if err := r.Run(context.Background(), "wf-1", "p1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The unknown band was searched but produced no summary.
	if len(posterAgent.summaries) != 1 {
		t.Fatalf("summaries = %v, want only the resolved band", posterAgent.summaries)
	}
	summary := posterAgent.summaries["Beastie Boys"]
	if summary.Position != 0 || summary.URI != "spotify:artist:bb" {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.TopTrackURIs) != topTrackLimit {
		t.Errorf("top tracks = %v, want capped at %d", summary.TopTrackURIs, topTrackLimit)
	}
	if summary.Description == nil || *summary.Description != "condensed: A long artist biography." {
		t.Errorf("description = %v", summary.Description)
	}
}

func TestResearcherReplaySkipsCompletedSteps(t *testing.T) {
	catalog := &fakeCatalog{
		artists: map[string]*spotify.Artist{
			"Band": {ID: "a1", URI: "spotify:artist:a1", URL: "https://open.spotify.com/artist/a1"},
		},
	}
	posterAgent := &fakeWorkflowPoster{bands: []string{"Band"}}
	posters := &fakePosters{agents: map[string]*fakeWorkflowPoster{"p1": posterAgent}}
	steps := newMemStepLog()

	r := NewResearcher(catalog, &fakeScraper{}, &fakeSummarizer{}, posters, steps, zerolog.Nop())
	ctx := context.Background()
	if err := r.Run(ctx, "wf-1", "p1"); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	searches := len(catalog.search)

	if err := r.Run(ctx, "wf-1", "p1"); err != nil {
		t.Fatalf("replay Run() error = %v", err)
	}
	if len(catalog.search) != searches {
		t.Errorf("replay searched again: %v", catalog.search)
	}
}

func TestResearcherScrapeFailureIsBestEffort(t *testing.T) {
	catalog := &fakeCatalog{
		artists: map[string]*spotify.Artist{
			"Band": {ID: "a1", URI: "spotify:artist:a1", URL: "https://open.spotify.com/artist/a1"},
		},
	}
	scraper := &fakeScraper{err: errors.New("page unreachable")}
	summarizer := &fakeSummarizer{}
	posterAgent := &fakeWorkflowPoster{bands: []string{"Band"}}
	posters := &fakePosters{agents: map[string]*fakeWorkflowPoster{"p1": posterAgent}}

	r := NewResearcher(catalog, scraper, summarizer, posters, newMemStepLog(), zerolog.Nop())
	if err := r.Run(context.Background(), "wf-1", "p1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	summary, ok := posterAgent.summaries["Band"]
	if !ok {
		t.Fatal("summary missing after scrape failure")
	}
	if summary.Description != nil {
		t.Errorf("description = %v, want nil without about text", summary.Description)
	}
	if len(summarizer.calls) != 0 {
		t.Errorf("summarizer ran without about text: %v", summarizer.calls)
	}
}
