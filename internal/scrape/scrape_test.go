package scrape

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/JohnDeved/addmovie/internal/client"
)

const (
	origin    = "http://www.imdb.com"
	amazonURL = "https://www.amazon.com/gp/video/detail/B00TU9UFTS/ref=atv_dp"
)

// fakeFetcher serves canned pages by URL; unknown URLs fail like a
// transport error would.
type fakeFetcher struct {
	pages map[string]*client.Page
	calls []string
}

func (f *fakeFetcher) Get(_ context.Context, rawURL string) *client.Page {
	f.calls = append(f.calls, rawURL)
	return f.pages[rawURL]
}

func (f *fakeFetcher) serve(rawURL, body string) {
	if f.pages == nil {
		f.pages = map[string]*client.Page{}
	}
	f.pages[rawURL] = &client.Page{URL: rawURL, StatusCode: 200, Body: body}
}

func (f *fakeFetcher) redirect(rawURL, finalURL string) {
	if f.pages == nil {
		f.pages = map[string]*client.Page{}
	}
	f.pages[rawURL] = &client.Page{URL: finalURL, StatusCode: 200, Body: "<html></html>"}
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("reading fixture %s: %v", name, err)
	}
	return string(data)
}

func newTestScraper(f Fetcher) *Scraper {
	return New(f, Options{Logger: zerolog.Nop()})
}
