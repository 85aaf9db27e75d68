package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// ErrArtistNotFound is returned when a search yields no artists.
var ErrArtistNotFound = errors.New("artist not found")

// SearchArtist resolves a band name to the catalog's top-ranked artist.
// No disambiguation is attempted; ambiguous names resolve to whatever the
// search ranks first.
func (c *Client) SearchArtist(ctx context.Context, name string) (*Artist, error) {
	results, err := c.api.Search(ctx, name, spotify.SearchTypeArtist, spotify.Limit(1))
	if err != nil {
		return nil, fmt.Errorf("searching for artist %q: %w", name, err)
	}
	if results.Artists == nil || len(results.Artists.Artists) == 0 {
		return nil, ErrArtistNotFound
	}

	first := results.Artists.Artists[0]
	return &Artist{
		ID:     first.ID.String(),
		Name:   first.Name,
		URI:    string(first.URI),
		URL:    first.ExternalURLs["spotify"],
		Genres: first.Genres,
	}, nil
}

// TopTrackURIs returns the artist's top track URIs for the given market, up
// to limit.
func (c *Client) TopTrackURIs(ctx context.Context, artistID, market string, limit int) ([]string, error) {
	tracks, err := c.api.GetArtistsTopTracks(ctx, spotify.ID(artistID), market)
	if err != nil {
		return nil, fmt.Errorf("getting top tracks for %s: %w", artistID, err)
	}

	if limit > 0 && len(tracks) > limit {
		tracks = tracks[:limit]
	}
	uris := make([]string, len(tracks))
	for i, t := range tracks {
		uris[i] = string(t.URI)
	}
	return uris, nil
}
