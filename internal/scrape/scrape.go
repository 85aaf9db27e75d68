// Package scrape extracts the descriptive "About" section from a public
// artist profile page. Extraction is best-effort: an absent section is not
// an error.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "bandaid/1.0"

// Scraper fetches artist pages and pulls their about text.
type Scraper struct {
	httpClient *http.Client
}

// New creates a Scraper with a bounded request timeout.
func New() *Scraper {
	return &Scraper{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AboutText fetches the page at url and returns the text following its
// "About" heading. Returns "" (and no error) when the section is missing.
func (s *Scraper) AboutText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching artist page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching artist page: unexpected status %d", resp.StatusCode)
	}

	return extractAbout(resp.Body)
}

// extractAbout finds an <h2>About</h2> heading and returns the last text
// block within the heading's parent. Class names on these pages are
// generated, so navigation relies on structure only.
func extractAbout(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parsing artist page: %w", err)
	}

	var about string
	doc.Find("h2").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if strings.TrimSpace(heading.Text()) != "About" {
			return true
		}
		blocks := heading.Parent().Find(`[data-encore-id="text"]`)
		if blocks.Length() == 0 {
			blocks = heading.Parent().Find("p")
		}
		if blocks.Length() > 0 {
			about = strings.TrimSpace(blocks.Last().Text())
		}
		return false
	})
	return about, nil
}
