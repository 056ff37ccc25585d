package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/newsnexus/dbopen"
)

const requestColumns = `id, source_id, url, and_string, or_string, not_string, signature,
	date_start, date_end, status, error, count_received, count_saved,
	is_from_automation, created_at, updated_at`

// CreateRequest inserts a request record. ID and timestamps are filled in.
func (s *Store) CreateRequest(ctx context.Context, r *Request) error {
	if r.ID == "" {
		r.ID = s.newID()
	}
	now := s.stamp()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO news_api_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SourceID, r.URL, r.AndString, r.OrString, r.NotString, r.Signature,
		r.DateStart, r.DateEnd, r.Status, r.Error, r.CountReceived, r.CountSaved,
		boolInt(r.IsFromAutomation), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	return nil
}

// UpdateRequestSavedCount records how many articles the request stored.
func (s *Store) UpdateRequestSavedCount(ctx context.Context, id string, saved int) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE news_api_requests SET count_saved = ?, updated_at = ? WHERE id = ?`,
		saved, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("store: update saved count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: update saved count: request %s not found", id)
	}
	return nil
}

// MarkRequestFailed flips a request to error status so the planner no
// longer counts its window as covered.
func (s *Store) MarkRequestFailed(ctx context.Context, id, reason string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE news_api_requests SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusError, reason, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("store: mark request failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: mark request failed: request %s not found", id)
	}
	return nil
}

// LatestRequest returns the successful request with the furthest window
// end for (sourceID, signature), or nil if there is none.
func (s *Store) LatestRequest(ctx context.Context, sourceID, signature string) (*Request, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM news_api_requests
		WHERE source_id = ? AND signature = ? AND status = ?
		ORDER BY date_end DESC, created_at DESC LIMIT 1`,
		sourceID, signature, StatusSuccess)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest request: %w", err)
	}
	return r, nil
}

// GetRequest returns a request by ID, or nil.
func (s *Store) GetRequest(ctx context.Context, id string) (*Request, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM news_api_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get request: %w", err)
	}
	return r, nil
}

// ListRequests returns requests newest first. An empty sourceID lists all.
func (s *Store) ListRequests(ctx context.Context, sourceID string, limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + requestColumns + ` FROM news_api_requests`
	args := []any{}
	if sourceID != "" {
		q += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list requests: %w", err)
	}
	defer rows.Close()

	var result []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan request: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (*Request, error) {
	var r Request
	var auto int
	err := sc.Scan(&r.ID, &r.SourceID, &r.URL, &r.AndString, &r.OrString, &r.NotString, &r.Signature,
		&r.DateStart, &r.DateEnd, &r.Status, &r.Error, &r.CountReceived, &r.CountSaved,
		&auto, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.IsFromAutomation = auto != 0
	return &r, nil
}
