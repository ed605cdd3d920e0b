package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Search asks the search engine for detail pages on the configured site and
// returns their numeric identifiers, deduplicated in ranking order.
// A failed fetch or a page without matches yields an empty slice.
func (s *Scraper) Search(ctx context.Context, query string) []string {
	searchURL := s.SearchQueryURL(query)
	page := s.fetch.Get(ctx, searchURL)
	if page == nil {
		return []string{}
	}
	ids := s.MatchIDs(page.Body)
	s.log.Debug().Str("query", query).Strs("ids", ids).Msg("Search resolved")
	return ids
}

// SearchQueryURL builds the engine URL for query, scoped to the site's
// title pages.
func (s *Scraper) SearchQueryURL(query string) string {
	q := quote(fmt.Sprintf("site:%q %s", s.siteDomain+"/title", strings.TrimSpace(query)))
	return fmt.Sprintf("%s?q=%s&go=Submit&qs=n&form=QBRE&count=%d&pq=%s",
		s.searchURL, q, s.resultCount, q)
}

// MatchIDs scans raw result-page HTML for detail links. The trailing `" h`
// is part of how the engine renders result anchors; it keeps snippet text
// that merely mentions a URL from matching.
func (s *Scraper) MatchIDs(html string) []string {
	matches := s.idPattern.FindAllStringSubmatch(html, -1)
	ids := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// quote percent-encodes s the way the engine's own form does: spaces as
// %20, slashes left alone.
func quote(s string) string {
	q := url.QueryEscape(s)
	q = strings.ReplaceAll(q, "+", "%20")
	return strings.ReplaceAll(q, "%2F", "/")
}
