package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractAbout(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "encore text blocks",
			html: `<html><body>
				<section>
					<h2>Discography</h2>
					<div data-encore-id="text">Not this</div>
				</section>
				<section>
					<h2>About</h2>
					<div data-encore-id="text">1,234 monthly listeners</div>
					<div data-encore-id="text">Alpha is a post-punk band from Leeds.</div>
				</section>
			</body></html>`,
			want: "Alpha is a post-punk band from Leeds.",
		},
		{
			name: "paragraph fallback",
			html: `<div><h2>About</h2><p>First.</p><p>Last paragraph wins.</p></div>`,
			want: "Last paragraph wins.",
		},
		{
			name: "no about section",
			html: `<div><h2>Tour Dates</h2><p>June 1</p></div>`,
			want: "",
		},
		{
			name: "about heading with no text blocks",
			html: `<div><h2>About</h2></div>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractAbout(strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("extractAbout() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("extractAbout() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAboutText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div><h2>About</h2><p>A fine live act.</p></div></body></html>`))
	}))
	defer server.Close()

	got, err := New().AboutText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("AboutText() error = %v", err)
	}
	if got != "A fine live act." {
		t.Errorf("AboutText() = %q", got)
	}
}

func TestAboutTextHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := New().AboutText(context.Background(), server.URL); err == nil {
		t.Fatal("AboutText() error = nil, want error")
	}
}
