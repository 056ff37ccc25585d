package requester

import (
	"context"
	"time"

	"github.com/hazyhaar/newsnexus/observability"
	"github.com/hazyhaar/newsnexus/requester/internal/pipeline"
)

// Metric names recorded for every run.
const (
	MetricRuns             = "newsnexus_runs_total"
	MetricArticlesReceived = "newsnexus_articles_received"
	MetricArticlesStored   = "newsnexus_articles_stored"
	MetricRunDuration      = "newsnexus_run_duration"
)

// Metric is a recorded datapoint.
type Metric = observability.Metric

type runner interface {
	Run(ctx context.Context, prm pipeline.Params) (*pipeline.Outcome, error)
}

// meteredRunner records run counters around a pipeline.
type meteredRunner struct {
	next    runner
	metrics *observability.MetricsManager
}

func (m meteredRunner) Run(ctx context.Context, prm Params) (*Outcome, error) {
	start := time.Now()
	out, err := m.next.Run(ctx, prm)

	trigger := "manual"
	if prm.Automated {
		trigger = "scheduled"
	}
	m.metrics.Count(MetricRuns, 1, map[string]string{"status": runStatus(out, err), "trigger": trigger})
	if out != nil && !out.Skipped && !out.DryRun {
		m.metrics.Count(MetricArticlesReceived, float64(out.Received), map[string]string{"trigger": trigger})
		m.metrics.Count(MetricArticlesStored, float64(out.Stored), map[string]string{"trigger": trigger})
	}
	m.metrics.Record(&observability.Metric{
		Name:   MetricRunDuration,
		Value:  float64(time.Since(start).Milliseconds()),
		Unit:   "milliseconds",
		Labels: map[string]string{"trigger": trigger},
	})
	return out, err
}

func runStatus(out *Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case out.Skipped:
		return "skipped"
	case out.DryRun:
		return "dry_run"
	case out.RateLimited:
		return "rate_limited"
	case out.FetchErr != nil:
		return "fetch_error"
	case out.IngestErr != nil:
		return "ingest_error"
	default:
		return "success"
	}
}

// Metrics returns recorded datapoints newest first. Queued datapoints are
// flushed first. An empty name matches all.
func (svc *Service) Metrics(ctx context.Context, name string, limit int) ([]*Metric, error) {
	svc.metrics.Flush()
	return svc.metrics.Query(ctx, name, time.Time{}, limit)
}
