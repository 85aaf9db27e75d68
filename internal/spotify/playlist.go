package spotify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

const maxTracksPerRequest = 100

// Playlist identifies a created playlist.
type Playlist struct {
	ID  string
	URL string
}

// CreatePlaylist creates a new public, collaborative playlist for the user.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string) (*Playlist, error) {
	playlist, err := c.api.CreatePlaylistForUser(ctx, userID, name, description, true, true)
	if err != nil {
		return nil, fmt.Errorf("creating playlist: %w", err)
	}

	return &Playlist{
		ID:  playlist.ID.String(),
		URL: playlist.ExternalURLs["spotify"],
	}, nil
}

// AddTracksToPlaylist adds tracks to a playlist, handling batching for large sets.
// Spotify allows max 100 tracks per request.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackURIs []string) error {
	if len(trackURIs) == 0 {
		return nil
	}

	// Track URIs carry a "spotify:track:" prefix; the API wants bare IDs.
	ids := make([]spotify.ID, len(trackURIs))
	for i, uri := range trackURIs {
		ids[i] = trackIDFromURI(uri)
	}

	// Batch in chunks of 100
	for i := 0; i < len(ids); i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, len(ids))
		batch := ids[i:end]

		_, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...)
		if err != nil {
			return fmt.Errorf("adding tracks (batch %d-%d): %w", i+1, end, err)
		}
	}

	return nil
}

// SetCoverImage sets a JPEG cover image on the playlist.
func (c *Client) SetCoverImage(ctx context.Context, playlistID string, jpeg []byte) error {
	err := c.api.SetPlaylistImage(ctx, spotify.ID(playlistID), bytes.NewReader(jpeg))
	if err != nil {
		return fmt.Errorf("setting playlist cover: %w", err)
	}
	return nil
}

func trackIDFromURI(uri string) spotify.ID {
	const prefix = "spotify:track:"
	if len(uri) > len(prefix) && uri[:len(prefix)] == prefix {
		return spotify.ID(uri[len(prefix):])
	}
	return spotify.ID(uri)
}
