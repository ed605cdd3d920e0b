package scrape

import "context"

// ResolveRedirect fetches a site-relative link and returns the URL the
// request finally landed on, or "" if the fetch failed.
func (s *Scraper) ResolveRedirect(ctx context.Context, link string) string {
	page := s.fetch.Get(ctx, s.siteOrigin+link)
	if page == nil {
		return ""
	}
	return page.URL
}
