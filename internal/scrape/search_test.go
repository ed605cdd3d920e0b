package scrape

import (
	"context"
	"reflect"
	"testing"
)

func TestMatchIDs_DedupPreservesFirstSeenOrder(t *testing.T) {
	s := newTestScraper(&fakeFetcher{})
	got := s.MatchIDs(fixture(t, "search_results.html"))
	want := []string{"0816692", "2084970"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MatchIDs = %v, want %v", got, want)
	}
}

func TestMatchIDs_IsCaseSensitiveAndNeedsTrailingToken(t *testing.T) {
	s := newTestScraper(&fakeFetcher{})
	html := `<a href="http://www.IMDB.com/title/tt1/" h="x">` +
		`<a href="http://www.imdb.com/title/tt2/">` +
		`<a href="http://www.imdb.com/title/tt3/" h="x">`
	got := s.MatchIDs(html)
	if !reflect.DeepEqual(got, []string{"3"}) {
		t.Fatalf("MatchIDs = %v", got)
	}
	if got := s.MatchIDs("no results here"); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestSearchQueryURL_ScopedAndEncoded(t *testing.T) {
	s := newTestScraper(&fakeFetcher{})
	got := s.SearchQueryURL("  interstellar  ")
	want := "http://www.bing.com/search?q=site%3A%22imdb.com/title%22%20interstellar" +
		"&go=Submit&qs=n&form=QBRE&count=5" +
		"&pq=site%3A%22imdb.com/title%22%20interstellar"
	if got != want {
		t.Fatalf("SearchQueryURL =\n  %s\nwant\n  %s", got, want)
	}
}

func TestSearch_UsesFetchedPage(t *testing.T) {
	f := &fakeFetcher{}
	s := newTestScraper(f)
	f.serve(s.SearchQueryURL("interstellar"), fixture(t, "search_results.html"))

	got := s.Search(context.Background(), "interstellar")
	if !reflect.DeepEqual(got, []string{"0816692", "2084970"}) {
		t.Fatalf("Search = %v", got)
	}
}

func TestSearch_FetchFailureIsEmptyNotNil(t *testing.T) {
	s := newTestScraper(&fakeFetcher{})
	got := s.Search(context.Background(), "interstellar")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestQuote_MatchesFormEncoding(t *testing.T) {
	cases := map[string]string{
		`site:"imdb.com/title" a b`: `site%3A%22imdb.com/title%22%20a%20b`,
		"c++ & más":                 "c%2B%2B%20%26%20m%C3%A1s",
	}
	for in, want := range cases {
		if got := quote(in); got != want {
			t.Fatalf("quote(%q) = %q, want %q", in, got, want)
		}
	}
}
