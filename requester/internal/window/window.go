// Package window plans the date range of the next feed request from the
// request history of the same source and keyword signature.
package window

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/newsnexus/requester/internal/errs"
)

// DateLayout is the calendar-date format used for all window boundaries.
const DateLayout = "2006-01-02"

// Signature identifies a recurring query against one source.
type Signature struct {
	SourceID string
	And      string
	Or       string
	Not      string
}

// Window is a [Start, End) range of calendar dates (00:00 UTC).
// End > Start whenever Skip is false.
type Window struct {
	Start time.Time
	End   time.Time
	Skip  bool
}

// StartDate formats Start as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.Format(DateLayout) }

// EndDate formats End as YYYY-MM-DD.
func (w Window) EndDate() string { return w.End.Format(DateLayout) }

// Coverage is the date range of the most recent request for a signature.
type Coverage struct {
	Start time.Time
	End   time.Time
}

// History looks up the most recent request for a signature. It returns
// (nil, nil) when there is none.
type History interface {
	LatestCoverage(ctx context.Context, sig Signature) (*Coverage, error)
}

// Planner computes request windows.
type Planner struct {
	history History
	now     func() time.Time
}

// NewPlanner creates a Planner. now defaults to time.Now.
func NewPlanner(h History, now func() time.Time) *Planner {
	if now == nil {
		now = time.Now
	}
	return &Planner{history: h, now: now}
}

// Plan returns the window for a request starting at requestedStart and
// spanning days. The end is capped at today. If the latest request for
// the signature already covers past the start, the start moves forward
// to its end. A collapsed window is returned with Skip set and End equal
// to the candidate end so the caller can advance its cursor.
func (p *Planner) Plan(ctx context.Context, sig Signature, requestedStart string, days int) (Window, error) {
	start, err := ParseDate(requestedStart)
	if err != nil {
		return Window{}, &errs.InvalidDateError{Field: "start_date", Value: requestedStart, Err: err}
	}
	if days <= 0 {
		return Window{}, &errs.InvalidDateError{
			Field: "window_days",
			Value: fmt.Sprint(days),
			Err:   fmt.Errorf("must be positive"),
		}
	}

	today := truncate(p.now())
	end := candidateEnd(start, days, today)

	if p.history != nil {
		cov, err := p.history.LatestCoverage(ctx, sig)
		if err != nil {
			return Window{}, fmt.Errorf("window: latest coverage: %w", err)
		}
		if cov != nil {
			if covered := truncate(cov.End); covered.After(start) {
				start = covered
				end = candidateEnd(start, days, today)
			}
		}
	}

	if !end.After(start) {
		if start.After(end) {
			end = start
		}
		return Window{Start: start, End: end, Skip: true}, nil
	}
	return Window{Start: start, End: end}, nil
}

// ParseDate parses a YYYY-MM-DD date as 00:00 UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func candidateEnd(start time.Time, days int, today time.Time) time.Time {
	end := start.AddDate(0, 0, days)
	if end.After(today) {
		end = today
	}
	return end
}

func truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
