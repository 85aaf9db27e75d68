package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

const recentPageSize = 50

// RecentTrackURIs pages through the user's play history starting at the
// given epoch-milliseconds timestamp and returns track URIs in feed order.
// Paging follows the feed's after-cursor until the feed stops advancing; a
// feed with zero pages yields an empty result.
func (c *Client) RecentTrackURIs(ctx context.Context, sinceMillis int64) ([]string, error) {
	var uris []string
	cursor := sinceMillis

	for {
		items, err := c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{
			Limit:        recentPageSize,
			AfterEpochMs: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching recent plays after %d: %w", cursor, err)
		}
		if len(items) == 0 {
			break
		}

		next := cursor
		for _, item := range items {
			uris = append(uris, string(item.Track.URI))
			if playedAt := item.PlayedAt.UnixMilli(); playedAt > next {
				next = playedAt
			}
		}

		// Terminal condition: the cursor stopped advancing.
		if next == cursor || len(items) < recentPageSize {
			break
		}
		cursor = next
	}

	return uris, nil
}
