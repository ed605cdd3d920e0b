package scrape

import (
	"fmt"
	"strings"
)

// Sentinels substituted when a field cannot be parsed.
const (
	UnknownYear = "0000"
	UnknownType = "NA"
)

// Record is the metadata scraped for one title.
//
// ID is always set. Every other field degrades to a sentinel or "" instead
// of being absent, so formatting a Record never needs a presence check.
type Record struct {
	ID       string `json:"imdb_id"`   // "tt" + numeric identifier
	Title    string `json:"title"`     // Parenthetical suffixes removed
	Year     string `json:"year"`      // UnknownYear when missing
	Type     string `json:"type"`      // Content rating; UnknownType when missing
	ImageURL string `json:"image_url"` // Poster path fragment on the CDN
	AmazonID string `json:"amazon_id"` // Marketplace ASIN
	// Fallback is set when the record came from the splash-page layout.
	// Such records never have ImageURL or AmazonID: they were not attempted.
	Fallback bool `json:"fallback,omitempty"`
}

// Label is the one-line form shown in result lists: "title year type".
func (r Record) Label() string {
	return fmt.Sprintf("%s %s %s", r.Title, r.Year, r.Type)
}

// Query is the derived "title year" string used to look the title up on
// other sites once it has been chosen.
func (r Record) Query() string {
	return fmt.Sprintf("%s %s", r.Title, r.Year)
}

// posterSuffix renders the small (101x150) poster variant.
const posterSuffix = "._V1_SY150_CR3,0,101,150_AL_.jpg"

// PosterURL builds the poster image URL on cdn, or "" when the record has
// no image fragment.
func (r Record) PosterURL(cdn string) string {
	if r.ImageURL == "" {
		return ""
	}
	if !strings.HasSuffix(cdn, "/") {
		cdn += "/"
	}
	return cdn + r.ImageURL + posterSuffix
}

// NumericID returns the identifier without its "tt" prefix.
func (r Record) NumericID() string {
	return strings.TrimPrefix(r.ID, "tt")
}

// NormalizeID accepts "tt0816692", "0816692" or a title URL and returns the
// numeric identifier, or "" if none is present.
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)
	if m := titleIDPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if s == "" {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return s
}
