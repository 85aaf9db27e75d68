// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api *spotify.Client
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// NewWithToken creates a client acting as the user that owns the token.
// The token is used as-is; refresh happens in the user agent's token vault,
// never here.
func NewWithToken(ctx context.Context, token *oauth2.Token) *Client {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	return &Client{api: spotify.New(httpClient, spotify.WithRetry(true))}
}

// NewClientCredentials creates a client authenticated with the application's
// own credentials. Used for catalog lookups that need no user context.
func NewClientCredentials(ctx context.Context, clientID, clientSecret string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return &Client{api: spotify.New(cfg.Client(ctx), spotify.WithRetry(true))}
}

// Profile describes the authenticated Spotify user.
type Profile struct {
	ID          string
	DisplayName string
	Email       string
	URL         string
}

// CurrentProfile returns the authenticated user's profile.
func (c *Client) CurrentProfile(ctx context.Context) (*Profile, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	return &Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		URL:         user.ExternalURLs["spotify"],
	}, nil
}
