package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/newsnexus/requester/internal/errs"
	"github.com/hazyhaar/newsnexus/requester/internal/query"
)

// noopValidator allows all URLs (for tests that don't test SSRF).
func noopValidator(_ string) error { return nil }

const oneItemRSS = `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>A</title><link>https://example.com/a</link>
<description>&lt;a href="https://example.com/a"&gt;Alpha&lt;/a&gt;</description>
<source url="https://example.com">Example</source></item>
</channel></rss>`

func serve(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL + "/rss/"
}

func TestFetchFeed_Success(t *testing.T) {
	// WHAT: A well-formed RSS response parses into articles.
	var gotQuery string
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rss/search" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		w.Write([]byte(oneItemRSS))
	})

	f := New(Config{URLValidator: noopValidator})
	res := f.FetchFeed(context.Background(), base, `"climate change" AND policy`, query.DefaultLocale)
	if res.State != Success || res.Err != nil {
		t.Fatalf("state=%s err=%v", res.State, res.Err)
	}
	if len(res.Articles) != 1 || res.Articles[0].Description != "Alpha" {
		t.Fatalf("articles: got %+v", res.Articles)
	}
	if !strings.HasSuffix(gotQuery, "&language=en&country=us") || !strings.HasPrefix(gotQuery, "q=") {
		t.Fatalf("query: got %q", gotQuery)
	}
}

func TestFetchFeed_ZeroItems(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<rss version="2.0"><channel><title>none</title></channel></rss>`))
	})
	res := New(Config{URLValidator: noopValidator}).FetchFeed(context.Background(), base, "zzz", query.DefaultLocale)
	if res.State != Success || len(res.Articles) != 0 {
		t.Fatalf("state=%s articles=%d err=%v", res.State, len(res.Articles), res.Err)
	}
}

func TestFetchFeed_Garbled(t *testing.T) {
	// WHAT: A non-XML body ends in Error with ParseError and the raw payload kept.
	// WHY: Diagnostics need the payload; the caller must not crash.
	payload := "<<<not xml at all"
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(payload))
	})
	res := New(Config{URLValidator: noopValidator}).FetchFeed(context.Background(), base, "x", query.DefaultLocale)
	if res.State != Error {
		t.Fatalf("state: got %s", res.State)
	}
	var pe *errs.ParseError
	if !errors.As(res.Err, &pe) {
		t.Fatalf("err: got %T %v", res.Err, res.Err)
	}
	if string(res.Raw) != payload {
		t.Fatalf("raw: got %q", res.Raw)
	}
	if res.Articles != nil {
		t.Fatal("articles should be nil on error")
	}
}

func TestFetchFeed_RateLimited(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"status 429", http.StatusTooManyRequests, "slow down"},
		{"code in body", http.StatusOK, `{"status":"error","code":"RateLimitExceeded"}`},
		{"message in body", http.StatusServiceUnavailable, "Rate limit exceeded. Try later."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			res := New(Config{URLValidator: noopValidator}).FetchFeed(context.Background(), base, "x", query.DefaultLocale)
			if res.State != Error || !res.RateLimited() {
				t.Fatalf("state=%s err=%v", res.State, res.Err)
			}
			var rl *errs.RateLimitedError
			errors.As(res.Err, &rl)
			if rl.StatusCode != tt.status {
				t.Fatalf("status: got %d, want %d", rl.StatusCode, tt.status)
			}
		})
	}
}

func TestFetchFeed_ValidFeedMentioningRateLimit(t *testing.T) {
	// WHAT: A parseable 200 feed whose items mention throttling is a success.
	// WHY: Markers in article text are news content, not a provider signal.
	const rss = `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>API outage: users see "Rate limit exceeded" errors</title><link>https://example.com/a</link>
<description>RateLimitExceeded spotted in logs</description></item>
<item><title>B</title><link>https://example.com/b</link><description>Beta</description></item>
</channel></rss>`
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rss))
	})
	res := New(Config{URLValidator: noopValidator}).FetchFeed(context.Background(), base, "x", query.DefaultLocale)
	if res.State != Success || res.Err != nil {
		t.Fatalf("state=%s err=%v", res.State, res.Err)
	}
	if res.RateLimited() {
		t.Fatal("valid feed must not be rate limited")
	}
	if len(res.Articles) != 2 {
		t.Fatalf("articles: got %d, want 2", len(res.Articles))
	}
}

func TestFetchFeed_HTTPError(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	res := New(Config{URLValidator: noopValidator}).FetchFeed(context.Background(), base, "x", query.DefaultLocale)
	var te *errs.TransportError
	if !errors.As(res.Err, &te) || te.StatusCode != http.StatusBadGateway {
		t.Fatalf("err: got %v", res.Err)
	}
	if res.RateLimited() {
		t.Fatal("502 is not rate limiting")
	}
}

func TestFetchFeed_NonTextBody(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	res := New(Config{URLValidator: noopValidator}).FetchFeed(context.Background(), base, "x", query.DefaultLocale)
	var te *errs.TransportError
	if !errors.As(res.Err, &te) {
		t.Fatalf("err: got %T %v", res.Err, res.Err)
	}
}

func TestFetchFeed_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL + "/"
	srv.Close()

	res := New(Config{URLValidator: noopValidator}).FetchFeed(context.Background(), base, "x", query.DefaultLocale)
	var te *errs.TransportError
	if res.State != Error || !errors.As(res.Err, &te) {
		t.Fatalf("state=%s err=%v", res.State, res.Err)
	}
	if errors.Unwrap(te) == nil {
		t.Fatal("raw transport error not preserved")
	}
}

func TestFetchFeed_Timeout(t *testing.T) {
	// WHAT: The configured timeout bounds the request.
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	f := New(Config{URLValidator: noopValidator, Timeout: 50 * time.Millisecond})
	start := time.Now()
	res := f.FetchFeed(context.Background(), base, "x", query.DefaultLocale)
	if res.State != Error {
		t.Fatalf("state: got %s", res.State)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not applied: %v", time.Since(start))
	}
}

func TestFetchFeed_SSRFBlocked(t *testing.T) {
	res := New(Config{}).FetchFeed(context.Background(), "http://127.0.0.1:1/rss/", "x", query.DefaultLocale)
	var te *errs.TransportError
	if !errors.As(res.Err, &te) {
		t.Fatalf("err: got %v", res.Err)
	}
}

func TestState_String(t *testing.T) {
	if Success.String() != "success" || Error.String() != "error" || NotStarted.String() != "not_started" {
		t.Fatal("unexpected state names")
	}
}
