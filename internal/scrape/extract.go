package scrape

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	parenthetical = regexp.MustCompile(`\([^()]+\)`)
	asinPattern   = regexp.MustCompile(`(B0\d\w+)`)
)

// Extract fetches the detail page of the numeric identifier id and parses
// it. It returns nil when the page cannot be fetched or neither layout
// yields a title.
func (s *Scraper) Extract(ctx context.Context, id string) *Record {
	pageURL := s.DetailURL(id)
	s.log.Info().Str("url", pageURL).Msg("Extracting title")
	page := s.fetch.Get(ctx, pageURL)
	if page == nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		s.log.Warn().Err(err).Str("url", pageURL).Msg("Unparseable detail page")
		return nil
	}
	return s.Parse(ctx, id, doc)
}

// ExtractAll extracts ids in order, skipping the ones Extract rejects.
func (s *Scraper) ExtractAll(ctx context.Context, ids []string) []Record {
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r := s.Extract(ctx, id); r != nil {
			records = append(records, *r)
		}
	}
	return records
}

// DetailURL returns the detail page URL for a numeric identifier.
func (s *Scraper) DetailURL(id string) string {
	return s.siteOrigin + "/title/tt" + id
}

// Parse extracts a Record from a detail page. Only the marketplace field
// touches the network (to follow its redirect).
func (s *Scraper) Parse(ctx context.Context, id string, doc *goquery.Document) *Record {
	rec := &Record{ID: "tt" + id}

	wrapper := doc.Find("div.title_wrapper").First()
	heading := wrapper.Find(`h1[itemprop="name"]`).First()
	if heading.Length() > 0 {
		rec.Title = cleanTitle(heading.Text())
	}
	if rec.Title == "" {
		return s.parseSplash(rec, doc)
	}

	rec.Year = yearIn(heading)
	rec.Type = contentRatingIn(wrapper)
	rec.ImageURL = s.posterFragment(doc)
	rec.AmazonID = s.amazonID(ctx, doc)
	return rec
}

// parseSplash handles promotional pages that replace the title wrapper
// with a generic header. Poster and marketplace fields are not attempted.
func (s *Scraper) parseSplash(rec *Record, doc *goquery.Document) *Record {
	header := doc.Find("h1.header").First()
	if header.Length() == 0 {
		s.log.Info().Str("imdb_id", rec.ID).Msg("No title found in either layout")
		return nil
	}
	rec.Title = cleanTitle(header.Text())
	rec.Year = yearIn(header)
	rec.Type = contentRatingIn(doc.Find("div.infobar").First())
	rec.ImageURL = ""
	rec.AmazonID = ""
	rec.Fallback = true
	return rec
}

func cleanTitle(s string) string {
	return strings.TrimSpace(parenthetical.ReplaceAllString(s, ""))
}

// yearIn reads the first link inside a title heading.
func yearIn(heading *goquery.Selection) string {
	a := heading.Find("a").First()
	if a.Length() == 0 {
		return UnknownYear
	}
	return strings.TrimSpace(a.Text())
}

func contentRatingIn(scope *goquery.Selection) string {
	v, ok := scope.Find(`meta[itemprop="contentRating"]`).First().Attr("content")
	if !ok {
		return UnknownType
	}
	return v
}

func (s *Scraper) posterFragment(doc *goquery.Document) string {
	href, ok := doc.Find(`link[rel~="image_src"]`).First().Attr("href")
	if !ok {
		return ""
	}
	m := s.posterRe.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	return m[1]
}

func (s *Scraper) amazonID(ctx context.Context, doc *goquery.Document) string {
	href, ok := doc.Find("a.segment-link").First().Attr("href")
	if !ok {
		return ""
	}
	final := s.ResolveRedirect(ctx, href)
	m := asinPattern.FindStringSubmatch(final)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
