package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient() *Client {
	return New(Options{RequestsPerSecond: 1000, Logger: zerolog.Nop()})
}

func TestGet_SendsUserAgentAndFollowsRedirects(t *testing.T) {
	var gotUA string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final?x=1", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html>ok</html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page := newTestClient().Get(context.Background(), srv.URL+"/start")
	if page == nil {
		t.Fatalf("expected a page")
	}
	if gotUA != DefaultUserAgent {
		t.Fatalf("User-Agent = %q", gotUA)
	}
	if page.URL != srv.URL+"/final?x=1" {
		t.Fatalf("final URL = %q", page.URL)
	}
	if page.Body != "<html>ok</html>" {
		t.Fatalf("body = %q", page.Body)
	}
}

func TestGet_DecodesLegacyCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("Am\xe9lie"))
	}))
	defer srv.Close()

	page := newTestClient().Get(context.Background(), srv.URL)
	if page == nil || page.Body != "Amélie" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestGet_FailuresReturnNil(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	c := newTestClient()
	for _, u := range []string{notFound.URL, closedURL, "http://[::1", ""} {
		if page := c.Get(context.Background(), u); page != nil {
			t.Fatalf("expected nil for %q, got %+v", u, page)
		}
	}
}

func TestDownload_RejectsHTMLAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("JPEGDATA"))
		case "/page.jpg":
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<html/>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient()
	body, n, err := c.Download(context.Background(), srv.URL+"/img.jpg")
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "JPEGDATA" || n != int64(len("JPEGDATA")) {
		t.Fatalf("unexpected download: %q (%d)", data, n)
	}

	if _, _, err := c.Download(context.Background(), srv.URL+"/page.jpg"); err == nil || !strings.Contains(err.Error(), "HTML") {
		t.Fatalf("expected HTML refusal, got %v", err)
	}

	_, _, err = c.Download(context.Background(), srv.URL+"/missing.jpg")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
}
