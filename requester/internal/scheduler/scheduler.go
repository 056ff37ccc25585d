// Package scheduler runs the enabled keyword sets of a source on a ticker
// and advances each set's cursor when its window completes.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/newsnexus/requester/internal/lock"
	"github.com/hazyhaar/newsnexus/requester/internal/pipeline"
	"github.com/hazyhaar/newsnexus/requester/internal/store"
	"github.com/hazyhaar/newsnexus/requester/internal/window"
)

// QuerySets is the subset of the store the scheduler reads and updates.
type QuerySets interface {
	ListQuerySets(ctx context.Context, sourceID string, enabledOnly bool) ([]*store.QuerySet, error)
	UpdateQuerySetCursor(ctx context.Context, id, lastProcessed string) error
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, prm pipeline.Params) (*pipeline.Outcome, error)
}

// Config configures the scheduler.
type Config struct {
	// CheckInterval is how often enabled sets are run. Default: 1 hour.
	CheckInterval time.Duration
	// LookbackDays is the start offset of a set that has no cursor yet.
	// Default: 10.
	LookbackDays int
}

func (c *Config) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Hour
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 10
	}
}

// Result is the result of one set in a pass.
type Result struct {
	QuerySetID string            `json:"query_set_id"`
	Locked     bool              `json:"locked,omitempty"`
	Outcome    *pipeline.Outcome `json:"outcome,omitempty"`
	Err        error             `json:"-"`
	Error      string            `json:"error,omitempty"`
}

// Scheduler periodically runs every enabled query set of one source.
type Scheduler struct {
	sets     QuerySets
	runner   Runner
	locker   lock.Locker
	sourceID string
	config   Config
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Scheduler. now may be nil.
func New(sets QuerySets, runner Runner, locker lock.Locker, sourceID string, cfg Config, now func() time.Time, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sets:     sets,
		runner:   runner,
		locker:   locker,
		sourceID: sourceID,
		config:   cfg,
		now:      now,
		logger:   logger,
	}
}

// Run executes a pass on a ticker. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Run once immediately on start.
	s.RunAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll runs every enabled set once, sequentially.
func (s *Scheduler) RunAll(ctx context.Context) []Result {
	sets, err := s.sets.ListQuerySets(ctx, s.sourceID, true)
	if err != nil {
		s.logger.Error("scheduler: list query sets", "error", err)
		return nil
	}

	results := make([]Result, 0, len(sets))
	for _, qs := range sets {
		if ctx.Err() != nil {
			break
		}
		results = append(results, s.RunSet(ctx, qs))
	}
	if len(sets) > 0 {
		s.logger.Debug("scheduler: pass done", "sets", len(sets), "ran", len(results))
	}
	return results
}

// RunSet runs one query set under its lock and stores the new cursor when
// the window completed.
func (s *Scheduler) RunSet(ctx context.Context, qs *store.QuerySet) Result {
	res := Result{QuerySetID: qs.ID}
	log := s.logger.With("query_set_id", qs.ID)

	release, err := s.locker.Acquire(ctx, lock.Key(qs.SourceID, qs.AndString, qs.OrString, qs.NotString))
	if errors.Is(err, lock.ErrLocked) {
		log.Info("scheduler: query set already running, skipped")
		res.Locked = true
		return res
	}
	if err != nil {
		return res.fail(err)
	}
	defer release()

	out, err := s.runner.Run(ctx, pipeline.Params{
		And:       qs.AndString,
		Or:        qs.OrString,
		Not:       qs.NotString,
		StartDate: s.startDate(qs),
		Automated: true,
	})
	if err != nil {
		log.Warn("scheduler: run failed", "error", err)
		return res.fail(err)
	}
	res.Outcome = out

	if !out.Completed() || out.EndDate == qs.LastProcessedDate {
		return res
	}
	if err := s.sets.UpdateQuerySetCursor(context.WithoutCancel(ctx), qs.ID, out.EndDate); err != nil {
		log.Error("scheduler: update cursor", "error", err)
		return res.fail(err)
	}
	qs.LastProcessedDate = out.EndDate
	log.Info("scheduler: cursor advanced", "last_processed_date", out.EndDate)
	return res
}

func (s *Scheduler) startDate(qs *store.QuerySet) string {
	if qs.LastProcessedDate != "" {
		return qs.LastProcessedDate
	}
	return s.now().UTC().AddDate(0, 0, -s.config.LookbackDays).Format(window.DateLayout)
}

func (r Result) fail(err error) Result {
	r.Err = err
	r.Error = err.Error()
	return r
}
