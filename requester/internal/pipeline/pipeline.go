// Package pipeline sequences one ingestion run: plan the date window,
// compile the query, fetch the feed, record the request and ingest new
// articles. It returns the effective end date for the caller to persist
// as its cursor.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/newsnexus/requester/internal/diag"
	"github.com/hazyhaar/newsnexus/requester/internal/errs"
	"github.com/hazyhaar/newsnexus/requester/internal/feed"
	"github.com/hazyhaar/newsnexus/requester/internal/fetch"
	"github.com/hazyhaar/newsnexus/requester/internal/ingest"
	"github.com/hazyhaar/newsnexus/requester/internal/query"
	"github.com/hazyhaar/newsnexus/requester/internal/scoring"
	"github.com/hazyhaar/newsnexus/requester/internal/store"
	"github.com/hazyhaar/newsnexus/requester/internal/window"
)

// Storage is the subset of the store used by a run.
type Storage interface {
	FindSourceByName(ctx context.Context, nameOfOrg string) (*store.Source, error)
	LatestRequest(ctx context.Context, sourceID, signature string) (*store.Request, error)
	CreateRequest(ctx context.Context, r *store.Request) error
	MarkRequestFailed(ctx context.Context, id, reason string) error
}

// Fetcher retrieves and parses a search feed.
type Fetcher interface {
	FetchFeed(ctx context.Context, baseURL, q string, loc query.Locale) *fetch.FeedResult
}

// Ingester stores fetched articles.
type Ingester interface {
	Ingest(ctx context.Context, articles []feed.Article, rc ingest.RequestContext) *ingest.Result
}

// Config is the explicit configuration of a run.
type Config struct {
	OrgName string
	// ActivateRequests enables outbound fetches. When false a run stops
	// after building the URL (dry run).
	ActivateRequests bool
	WindowDays       int
	Locale           query.Locale
}

// Deps are the collaborators of a Pipeline. Reporter, Logger and Now are
// optional.
type Deps struct {
	Store    Storage
	Fetcher  Fetcher
	Ingester Ingester
	Scorer   scoring.Trigger
	Reporter diag.Reporter
	Logger   *slog.Logger
	Now      func() time.Time
}

// Params are the inputs of one run.
type Params struct {
	And       string `json:"and"`
	Or        string `json:"or"`
	Not       string `json:"not"`
	StartDate string `json:"start_date"`
	Automated bool   `json:"automated"`
}

// Outcome describes a finished run. FetchErr and IngestErr are recovered
// failures; they never come with a non-nil error from Run.
type Outcome struct {
	EndDate     string `json:"end_date"`
	StartDate   string `json:"start_date,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
	DryRun      bool   `json:"dry_run,omitempty"`
	URL         string `json:"url,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Received    int    `json:"received"`
	Stored      int    `json:"stored"`
	RateLimited bool   `json:"rate_limited,omitempty"`
	FetchErr    error  `json:"-"`
	IngestErr   error  `json:"-"`
}

// Completed reports whether the window was fully processed, i.e. the
// caller may advance its cursor to EndDate.
func (o *Outcome) Completed() bool {
	return o.Skipped || (!o.DryRun && o.FetchErr == nil && o.IngestErr == nil)
}

// MarshalJSON adds the recovered errors as strings.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	return json.Marshal(struct {
		*plain
		FetchError  string `json:"fetch_error,omitempty"`
		IngestError string `json:"ingest_error,omitempty"`
	}{(*plain)(o), errString(o.FetchErr), errString(o.IngestErr)})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Pipeline runs ingestion for one configured source.
type Pipeline struct {
	cfg      Config
	store    Storage
	fetcher  Fetcher
	ingester Ingester
	scorer   scoring.Trigger
	reporter diag.Reporter
	planner  *window.Planner
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config, d Deps) (*Pipeline, error) {
	if d.Store == nil || d.Fetcher == nil || d.Ingester == nil || d.Scorer == nil {
		return nil, errors.New("pipeline: store, fetcher, ingester and scorer are required")
	}
	if cfg.OrgName == "" {
		return nil, errors.New("pipeline: org name is required")
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 10
	}
	if d.Reporter == nil {
		d.Reporter = diag.Nop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		store:    d.Store,
		fetcher:  d.Fetcher,
		ingester: d.Ingester,
		scorer:   d.Scorer,
		reporter: d.Reporter,
		planner:  window.NewPlanner(history{d.Store}, d.Now),
		logger:   d.Logger,
	}, nil
}

// Run executes one ingestion. The returned error is non-nil only for
// conditions that prevent a run: unknown source, invalid dates, or a
// request record that could not be written.
func (p *Pipeline) Run(ctx context.Context, prm Params) (*Outcome, error) {
	src, err := p.store.FindSourceByName(ctx, p.cfg.OrgName)
	if err != nil {
		return nil, fmt.Errorf("pipeline: find source: %w", err)
	}
	if src == nil {
		return nil, fmt.Errorf("pipeline: %w: %q", errs.ErrSourceNotFound, p.cfg.OrgName)
	}
	if src.Entity == nil {
		return nil, fmt.Errorf("pipeline: %w: %q", errs.ErrNoEntity, p.cfg.OrgName)
	}
	log := p.logger.With("source_id", src.ID, "and", prm.And, "or", prm.Or, "not", prm.Not)

	sig := window.Signature{SourceID: src.ID, And: prm.And, Or: prm.Or, Not: prm.Not}
	w, err := p.planner.Plan(ctx, sig, prm.StartDate, p.cfg.WindowDays)
	if err != nil {
		return nil, err
	}
	out := &Outcome{StartDate: w.StartDate(), EndDate: w.EndDate()}
	if w.Skip {
		log.Info("pipeline: window already covered, no request needed", "end_date", out.EndDate)
		out.Skipped = true
		return out, nil
	}

	q := query.Compile(prm.And, prm.Or, prm.Not)
	out.URL = query.SearchURL(src.URL, q, p.cfg.Locale)

	if !p.cfg.ActivateRequests {
		log.Info("pipeline: outbound requests disabled, dry run", "url", out.URL)
		out.DryRun = true
		return out, nil
	}

	res := p.fetcher.FetchFeed(ctx, src.URL, q, p.cfg.Locale)

	req := &store.Request{
		SourceID:         src.ID,
		URL:              res.URL,
		AndString:        prm.And,
		OrString:         prm.Or,
		NotString:        prm.Not,
		Signature:        query.Signature(prm.And, prm.Or, prm.Not),
		DateStart:        out.StartDate,
		DateEnd:          out.EndDate,
		Status:           store.StatusSuccess,
		CountReceived:    len(res.Articles),
		IsFromAutomation: prm.Automated,
	}
	if res.Failed() {
		req.Status = store.StatusError
		req.Error = res.Err.Error()
	}
	createErr := p.store.CreateRequest(context.WithoutCancel(ctx), req)
	if createErr != nil {
		req.ID = ""
	}
	p.report(ctx, src.ID, req, res)

	if createErr != nil {
		return nil, &errs.PersistenceError{URL: res.URL, Op: "create_request", Err: createErr}
	}
	out.RequestID = req.ID
	out.Received = len(res.Articles)

	if res.RateLimited() {
		log.Warn("pipeline: rate limited, triggering semantic scorer", "request_id", req.ID)
		out.RateLimited = true
		out.FetchErr = res.Err
		if err := p.scorer.Trigger(ctx); err != nil {
			log.Error("pipeline: semantic scorer failed", "error", err)
		}
		return out, nil
	}
	if res.Failed() {
		log.Warn("pipeline: fetch failed", "request_id", req.ID, "error", res.Err)
		out.FetchErr = res.Err
		return out, nil
	}

	ir := p.ingester.Ingest(ctx, res.Articles, ingest.RequestContext{
		SourceID:  src.ID,
		RequestID: req.ID,
		EntityID:  src.Entity.ID,
		URL:       res.URL,
	})
	out.Stored = ir.Stored
	out.IngestErr = ir.Err
	if ir.Cancelled && ir.Err == nil {
		out.IngestErr = context.Cause(ctx)
	}
	if out.IngestErr != nil {
		// The window was not fully stored; keep it out of coverage so a
		// retry with the same cursor fetches it again.
		if err := p.store.MarkRequestFailed(context.WithoutCancel(ctx), req.ID, out.IngestErr.Error()); err != nil {
			log.Error("pipeline: mark request failed", "request_id", req.ID, "error", err)
		}
	}
	log.Info("pipeline: run complete",
		"request_id", req.ID, "start_date", out.StartDate, "end_date", out.EndDate,
		"received", out.Received, "stored", out.Stored)
	return out, nil
}

func (p *Pipeline) report(ctx context.Context, sourceID string, req *store.Request, res *fetch.FeedResult) {
	r := diag.Report{
		SourceID:      sourceID,
		RequestID:     req.ID,
		Kind:          "fetch",
		URL:           res.URL,
		Status:        req.Status,
		Failure:       res.Failed(),
		StatusCode:    res.StatusCode,
		CountReceived: req.CountReceived,
		Error:         req.Error,
		Payload:       res.Raw,
	}
	p.reporter.Report(ctx, r)
}

// history adapts Storage to window.History.
type history struct {
	s Storage
}

func (h history) LatestCoverage(ctx context.Context, sig window.Signature) (*window.Coverage, error) {
	r, err := h.s.LatestRequest(ctx, sig.SourceID, query.Signature(sig.And, sig.Or, sig.Not))
	if err != nil || r == nil {
		return nil, err
	}
	start, err := window.ParseDate(r.DateStart)
	if err != nil {
		return nil, fmt.Errorf("request %s: bad date_start %q: %w", r.ID, r.DateStart, err)
	}
	end, err := window.ParseDate(r.DateEnd)
	if err != nil {
		return nil, fmt.Errorf("request %s: bad date_end %q: %w", r.ID, r.DateEnd, err)
	}
	return &window.Coverage{Start: start, End: end}, nil
}
