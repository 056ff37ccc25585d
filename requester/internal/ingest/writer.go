// Package ingest persists fetched articles exactly once per URL and keeps
// the originating request's saved count equal to what was written.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/newsnexus/requester/internal/diag"
	"github.com/hazyhaar/newsnexus/requester/internal/errs"
	"github.com/hazyhaar/newsnexus/requester/internal/feed"
	"github.com/hazyhaar/newsnexus/requester/internal/store"
)

// Storage is the subset of the store used by the writer.
type Storage interface {
	FindArticleByURL(ctx context.Context, url string) (*store.Article, error)
	CreateArticle(ctx context.Context, a *store.Article) error
	CreateArticleContent(ctx context.Context, c *store.ArticleContent) error
	UpdateRequestSavedCount(ctx context.Context, requestID string, saved int) error
}

// RequestContext links ingested articles to their request and finder.
type RequestContext struct {
	SourceID  string
	RequestID string
	EntityID  string
	URL       string
}

// Result summarizes one ingestion. Err is a *errs.PersistenceError when a
// write failed; articles stored before it remain stored.
type Result struct {
	Received  int   `json:"received"`
	Stored    int   `json:"stored"`
	Skipped   int   `json:"skipped"`
	Cancelled bool  `json:"cancelled,omitempty"`
	Err       error `json:"-"`
}

// Writer stores articles.
type Writer struct {
	store    Storage
	reporter diag.Reporter
	logger   *slog.Logger
	policy   *bluemonday.Policy
	md       *converter.Converter
}

// NewWriter creates a Writer. reporter and logger may be nil.
func NewWriter(s Storage, reporter diag.Reporter, logger *slog.Logger) *Writer {
	if reporter == nil {
		reporter = diag.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:    s,
		reporter: reporter,
		logger:   logger,
		policy:   bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Ingest stores the articles not already known by URL. Cancellation of
// ctx is honoured between articles only. The request's saved count is
// always updated with the number actually stored, and the outcome is
// reported to diagnostics once.
func (w *Writer) Ingest(ctx context.Context, articles []feed.Article, rc RequestContext) *Result {
	log := w.logger.With("request_id", rc.RequestID)
	res := &Result{Received: len(articles)}

	for i := range articles {
		if ctx.Err() != nil {
			res.Cancelled = true
			log.Warn("ingest: cancelled", "stored", res.Stored, "remaining", len(articles)-i)
			break
		}
		// A started article is persisted with a context that ignores cancellation.
		stored, err := w.one(context.WithoutCancel(ctx), &articles[i], rc)
		if stored {
			res.Stored++
		} else if err == nil {
			res.Skipped++
		}
		if err != nil {
			res.Err = err
			log.Error("ingest: persistence failure", "error", err, "stored", res.Stored)
			break
		}
	}

	if err := w.store.UpdateRequestSavedCount(context.WithoutCancel(ctx), rc.RequestID, res.Stored); err != nil {
		log.Error("ingest: update saved count failed", "error", err)
		if res.Err == nil {
			res.Err = &errs.PersistenceError{URL: rc.URL, Op: "update_request", Err: err}
		}
	}

	w.report(ctx, articles, rc, res)
	log.Info("ingest: done", "received", res.Received, "stored", res.Stored, "skipped", res.Skipped)
	return res
}

// one stores a single article. It reports stored=false with a nil error
// for duplicates and articles without a link.
func (w *Writer) one(ctx context.Context, a *feed.Article, rc RequestContext) (bool, error) {
	link := strings.TrimSpace(a.Link)
	if link == "" {
		return false, nil
	}

	existing, err := w.store.FindArticleByURL(ctx, link)
	if err != nil {
		return false, &errs.PersistenceError{URL: link, Op: "find_article", Err: err}
	}
	if existing != nil {
		return false, nil
	}

	rec := &store.Article{
		URL:             link,
		Title:           a.Title,
		Description:     a.Description,
		PublicationName: a.Publication,
		PublishedDate:   publishedDate(a),
		EntityID:        rc.EntityID,
		RequestID:       rc.RequestID,
	}
	if err := w.store.CreateArticle(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateURL) {
			return false, nil
		}
		return false, &errs.PersistenceError{URL: link, Op: "create_article", Err: err}
	}

	if body := w.markdown(a.Content, link); body != "" {
		if err := w.store.CreateArticleContent(ctx, &store.ArticleContent{ArticleID: rec.ID, Content: body}); err != nil {
			return true, &errs.PersistenceError{URL: link, Op: "create_content", Err: err}
		}
	}
	return true, nil
}

// markdown sanitizes article HTML and converts it to markdown. Plain
// text passes through the converter unchanged.
func (w *Writer) markdown(html, pageURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	clean := w.policy.Sanitize(html)
	out, err := w.md.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(out) == "" {
		return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(html))
	}
	return strings.TrimSpace(out)
}

func publishedDate(a *feed.Article) string {
	if a.Published != nil {
		return a.Published.UTC().Format("2006-01-02")
	}
	return a.PubDate
}

func (w *Writer) report(ctx context.Context, articles []feed.Article, rc RequestContext, res *Result) {
	payload, _ := json.MarshalIndent(struct {
		Result   *Result        `json:"result"`
		Articles []feed.Article `json:"articles"`
	}{res, articles}, "", "  ")

	r := diag.Report{
		SourceID:      rc.SourceID,
		RequestID:     rc.RequestID,
		Kind:          "ingest",
		URL:           rc.URL,
		Status:        store.StatusSuccess,
		Failure:       res.Err != nil,
		CountReceived: res.Received,
		Payload:       payload,
	}
	if res.Err != nil {
		r.Status = store.StatusError
		r.Error = res.Err.Error()
	}
	w.reporter.Report(ctx, r)
}
