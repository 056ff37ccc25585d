// Package requester runs incremental ingestion of a news search feed.
//
// A run plans a date window that avoids re-requesting covered periods,
// compiles an AND/OR/NOT keyword triple into a search query, fetches and
// parses the RSS feed, records the request and stores new articles with
// their sanitized content. Recurring keyword sets are run by a scheduler
// that advances each set's cursor. The Service exposes the same
// operations to the CLI, the HTTP API and MCP tools.
package requester

import (
	"github.com/hazyhaar/newsnexus/requester/internal/pipeline"
	"github.com/hazyhaar/newsnexus/requester/internal/scheduler"
	"github.com/hazyhaar/newsnexus/requester/internal/store"
)

// Re-export store and pipeline types for the public API.
type (
	Source         = store.Source
	Entity         = store.Entity
	Request        = store.Request
	Article        = store.Article
	ArticleContent = store.ArticleContent
	QuerySet       = store.QuerySet
	Params         = pipeline.Params
	Outcome        = pipeline.Outcome
	SetResult      = scheduler.Result
)
