// Package scrape turns a free-text query into IMDb records: a site-scoped
// Bing search yields title identifiers, and each detail page is parsed
// field by field.
//
// The markup handled here is an unversioned external format. Every field
// parser degrades on its own to a sentinel value so that a layout change
// costs one field, not the whole record.
package scrape

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/JohnDeved/addmovie/internal/client"
)

// Fetcher is the HTTP capability the scraper needs. A nil page means the
// fetch failed and has already been logged.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) *client.Page
}

// Options holds the site endpoints; zero values take the defaults below.
type Options struct {
	SearchURL   string // Search engine query endpoint
	SiteDomain  string // Domain the search is scoped to
	SiteOrigin  string // Scheme and host for detail pages and redirects
	PosterCDN   string // Image host prefix of poster URLs
	ResultCount int
	Logger      zerolog.Logger
}

const (
	defaultSearchURL   = "http://www.bing.com/search"
	defaultSiteDomain  = "imdb.com"
	defaultSiteOrigin  = "http://www.imdb.com"
	defaultPosterCDN   = "http://ia.media-imdb.com/images/M/"
	defaultResultCount = 5
)

var titleIDPattern = regexp.MustCompile(`tt([0-9]+)`)

// Scraper holds no per-call state; concurrent use is safe as long as the
// Fetcher is.
type Scraper struct {
	fetch       Fetcher
	searchURL   string
	siteDomain  string
	siteOrigin  string
	resultCount int
	idPattern   *regexp.Regexp
	posterRe    *regexp.Regexp
	log         zerolog.Logger
}

// New creates a Scraper on top of f.
func New(f Fetcher, opts Options) *Scraper {
	s := &Scraper{
		fetch:       f,
		searchURL:   orDefault(opts.SearchURL, defaultSearchURL),
		siteDomain:  orDefault(opts.SiteDomain, defaultSiteDomain),
		siteOrigin:  strings.TrimRight(orDefault(opts.SiteOrigin, defaultSiteOrigin), "/"),
		resultCount: opts.ResultCount,
		log:         opts.Logger,
	}
	if s.resultCount <= 0 {
		s.resultCount = defaultResultCount
	}
	s.idPattern = regexp.MustCompile(regexp.QuoteMeta(s.siteDomain) + `/title/tt([0-9]+)/" h`)
	s.posterRe = posterPattern(orDefault(opts.PosterCDN, defaultPosterCDN))
	return s
}

// Find runs a search and extracts every candidate, in ranking order.
func (s *Scraper) Find(ctx context.Context, query string) []Record {
	return s.ExtractAll(ctx, s.Search(ctx, query))
}

// posterPattern captures the path between the CDN prefix (either scheme)
// and the "._V1" size token.
func posterPattern(cdn string) *regexp.Regexp {
	hostPath := cdn
	if i := strings.Index(hostPath, "://"); i >= 0 {
		hostPath = hostPath[i+3:]
	}
	if !strings.HasSuffix(hostPath, "/") {
		hostPath += "/"
	}
	return regexp.MustCompile(`https?://` + regexp.QuoteMeta(hostPath) + `(.*)\._V1`)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
