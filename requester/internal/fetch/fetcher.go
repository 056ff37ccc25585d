// Package fetch retrieves an aggregator search feed and classifies the
// outcome: parsed articles, transport failure, parse failure or rate
// limiting.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/newsnexus/horosafe"
	"github.com/hazyhaar/newsnexus/requester/internal/errs"
	"github.com/hazyhaar/newsnexus/requester/internal/feed"
	"github.com/hazyhaar/newsnexus/requester/internal/query"
)

// State is the position of one fetch in its lifecycle.
type State int

const (
	NotStarted State = iota
	Fetching
	Success
	Error
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Fetching:
		return "fetching"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// rateLimitMarkers are body substrings the provider uses to signal throttling.
var rateLimitMarkers = [][]byte{
	[]byte("RateLimitExceeded"),
	[]byte("Rate limit exceeded"),
}

// FeedResult is the outcome of one fetch. Err is one of
// *errs.TransportError, *errs.ParseError or *errs.RateLimitedError when
// State is Error. Raw keeps whatever body was read.
type FeedResult struct {
	URL        string
	State      State
	StatusCode int
	Raw        []byte
	Articles   []feed.Article
	Err        error
}

// Failed reports whether the fetch ended in Error.
func (r *FeedResult) Failed() bool { return r.State == Error }

// RateLimited reports whether the provider signalled throttling.
func (r *FeedResult) RateLimited() bool {
	var rl *errs.RateLimitedError
	return errors.As(r.Err, &rl)
}

// Config configures the fetcher.
type Config struct {
	Timeout   time.Duration // HTTP timeout. Default: 30s.
	MaxBytes  int64         // Max response body size. Default: 10MB.
	UserAgent string
	// URLValidator validates URLs before fetch and on redirects.
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "newsnexus/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Fetcher performs feed requests.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher with SSRF protection on redirects.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked (SSRF): %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// FetchFeed requests <baseURL>search?q=<q>&language=..&country=.. and
// parses the RSS body. It never returns nil and never panics; failures
// are reported through State and Err.
func (f *Fetcher) FetchFeed(ctx context.Context, baseURL, q string, loc query.Locale) (res *FeedResult) {
	res = &FeedResult{URL: query.SearchURL(baseURL, q, loc), State: NotStarted}
	log := f.config.Logger.With("url", res.URL)

	defer func() {
		if p := recover(); p != nil {
			res.State = Error
			res.Articles = nil
			res.Err = &errs.ParseError{Err: fmt.Errorf("panic: %v", p)}
			log.Error("fetch: recovered panic", "panic", p)
		}
	}()

	if err := f.config.URLValidator(res.URL); err != nil {
		return res.fail(&errs.TransportError{URL: res.URL, Err: fmt.Errorf("URL blocked (SSRF): %w", err)})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return res.fail(&errs.TransportError{URL: res.URL, Err: err})
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8")

	res.State = Fetching
	resp, err := f.client.Do(req)
	if err != nil {
		log.Warn("fetch: transport failure", "error", err)
		return res.fail(&errs.TransportError{URL: res.URL, Err: err})
	}
	defer resp.Body.Close()
	res.StatusCode = resp.StatusCode

	body, err := horosafe.LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return res.fail(&errs.TransportError{URL: res.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)})
	}
	res.Raw = body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if rl := rateLimit(resp.StatusCode, body); rl != nil {
			log.Warn("fetch: rate limited", "status", resp.StatusCode)
			return res.fail(rl)
		}
		return res.fail(&errs.TransportError{URL: res.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("http %d", resp.StatusCode)})
	}
	if ct := resp.Header.Get("Content-Type"); !horosafe.IsTextContentType(ct) {
		return res.fail(&errs.TransportError{URL: res.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("non-text content type %q", ct)})
	}

	// A 2xx body is only inspected for throttling markers once it fails to
	// parse as a feed, so article text never counts as a provider signal.
	articles, err := feed.Parse(body)
	if err != nil {
		if rl := rateLimit(resp.StatusCode, body); rl != nil {
			log.Warn("fetch: rate limited", "status", resp.StatusCode)
			return res.fail(rl)
		}
		log.Warn("fetch: parse failure", "error", err, "bytes", len(body))
		return res.fail(&errs.ParseError{Err: err})
	}
	res.State = Success
	res.Articles = articles
	log.Debug("fetch: ok", "articles", len(articles))
	return res
}

func (r *FeedResult) fail(err error) *FeedResult {
	r.State = Error
	r.Articles = nil
	r.Err = err
	return r
}

func rateLimit(status int, body []byte) *errs.RateLimitedError {
	if status == http.StatusTooManyRequests {
		return &errs.RateLimitedError{StatusCode: status, Message: firstMarker(body)}
	}
	if m := firstMarker(body); m != "" {
		return &errs.RateLimitedError{StatusCode: status, Message: m}
	}
	return nil
}

func firstMarker(body []byte) string {
	for _, m := range rateLimitMarkers {
		if bytes.Contains(body, m) {
			return string(m)
		}
	}
	return ""
}
