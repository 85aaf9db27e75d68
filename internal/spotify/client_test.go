package spotify

import (
	"context"
	"strings"
	"testing"
)

func TestTrackIDFromURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "full track uri",
			uri:  "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			want: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name: "bare id passes through",
			uri:  "4uLU6hMCjMI75M1A2tKUQC",
			want: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name: "empty string",
			uri:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trackIDFromURI(tt.uri); got.String() != tt.want {
				t.Errorf("trackIDFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestAuthenticatorAuthURL(t *testing.T) {
	auth := NewAuthenticator("client-id", "client-secret", "http://127.0.0.1:8080/spotify/callback")

	url := auth.AuthURL("state-token")
	if url == "" {
		t.Fatal("AuthURL() returned empty string")
	}
	for _, want := range []string{"client_id=client-id", "state=state-token", "user-read-recently-played"} {
		if !strings.Contains(url, want) {
			t.Errorf("AuthURL() = %q, missing %q", url, want)
		}
	}
}

func TestRefreshWithoutToken(t *testing.T) {
	auth := NewAuthenticator("id", "secret", "http://127.0.0.1/cb")
	if _, err := auth.Refresh(context.Background(), ""); err != ErrNoRefreshToken {
		t.Errorf("Refresh(\"\") error = %v, want ErrNoRefreshToken", err)
	}
}
