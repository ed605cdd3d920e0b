package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is a browser-like identifier; the scraped sites answer
// Go's default client string with block pages.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64)"

// maxPageBytes caps how much of a text page is read into memory.
const maxPageBytes = 8 << 20

// Page is a fetched text page.
type Page struct {
	URL         string // Final URL after redirects
	StatusCode  int
	ContentType string
	Body        string // Decoded to UTF-8
}

// Options configures a Client.
type Options struct {
	UserAgent         string
	RequestsPerSecond float64
	Timeout           time.Duration // 0 means no timeout
	Logger            zerolog.Logger
}

// Client issues single best-effort GET requests.
type Client struct {
	pageHTTP  *http.Client
	fileHTTP  *http.Client // No timeout for image downloads (managed by context)
	limiter   *rate.Limiter
	userAgent string
	log       zerolog.Logger
}

// New creates a new Client.
func New(opts Options) *Client {
	reqPerSec := opts.RequestsPerSecond
	if reqPerSec <= 0 {
		reqPerSec = 5.0
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &Client{
		pageHTTP: &http.Client{
			Timeout: opts.Timeout,
		},
		fileHTTP:  &http.Client{},
		limiter:   rate.NewLimiter(rate.Limit(reqPerSec), 5),
		userAgent: ua,
		log:       opts.Logger,
	}
}

// UserAgent returns the header value sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Get fetches rawURL and returns the decoded page, following redirects.
// Any failure (bad URL, DNS, refused connection, timeout, non-2xx status,
// unreadable body) is logged and reported as nil; callers treat nil as
// "no data available".
func (c *Client) Get(ctx context.Context, rawURL string) *Page {
	page, err := c.get(ctx, rawURL)
	if err != nil {
		c.log.Warn().Err(err).Str("url", rawURL).Msg("We failed to reach a server")
		return nil
	}
	return page
}

func (c *Client) get(ctx context.Context, rawURL string) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.pageHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), contentType)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", rawURL, err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	c.log.Debug().Str("url", rawURL).Str("final_url", finalURL).Int("bytes", len(data)).Msg("Fetched page")
	return &Page{
		URL:         finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        string(data),
	}, nil
}

// Download starts a binary download of fileURL.
// Returns the response body (caller must close) and the content length.
func (c *Client) Download(ctx context.Context, fileURL string) (io.ReadCloser, int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.fileHTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, &StatusError{URL: fileURL, StatusCode: resp.StatusCode}
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.Contains(contentType, "text/html") {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("refusing HTML response for image URL %s", fileURL)
	}

	return resp.Body, resp.ContentLength, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}
