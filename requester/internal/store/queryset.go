package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/newsnexus/dbopen"
)

// ErrDuplicateQuerySet is returned when a source already has a query set
// with the same keyword signature.
var ErrDuplicateQuerySet = errors.New("store: query set already exists")

const querySetColumns = `id, source_id, and_string, or_string, not_string, signature,
	last_processed_date, enabled, created_at, updated_at`

// CreateQuerySet inserts a keyword set.
func (s *Store) CreateQuerySet(ctx context.Context, q *QuerySet) error {
	if q.ID == "" {
		q.ID = s.newID()
	}
	now := s.stamp()
	q.CreatedAt, q.UpdatedAt = now, now
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO query_sets (`+querySetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.SourceID, q.AndString, q.OrString, q.NotString, q.Signature,
		q.LastProcessedDate, boolInt(q.Enabled), q.CreatedAt, q.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateQuerySet
	}
	if err != nil {
		return fmt.Errorf("store: create query set: %w", err)
	}
	return nil
}

// GetQuerySet returns a query set by ID, or nil.
func (s *Store) GetQuerySet(ctx context.Context, id string) (*QuerySet, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+querySetColumns+` FROM query_sets WHERE id = ?`, id)
	q, err := scanQuerySet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get query set: %w", err)
	}
	return q, nil
}

// ListQuerySets returns the query sets of a source, oldest first.
func (s *Store) ListQuerySets(ctx context.Context, sourceID string, enabledOnly bool) ([]*QuerySet, error) {
	q := `SELECT ` + querySetColumns + ` FROM query_sets WHERE source_id = ?`
	if enabledOnly {
		q += ` AND enabled = 1`
	}
	q += ` ORDER BY created_at, rowid`

	rows, err := s.DB.QueryContext(ctx, q, sourceID)
	if err != nil {
		return nil, fmt.Errorf("store: list query sets: %w", err)
	}
	defer rows.Close()

	var result []*QuerySet
	for rows.Next() {
		qs, err := scanQuerySet(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan query set: %w", err)
		}
		result = append(result, qs)
	}
	return result, rows.Err()
}

// UpdateQuerySetCursor stores the last processed date of a query set.
func (s *Store) UpdateQuerySetCursor(ctx context.Context, id, lastProcessed string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE query_sets SET last_processed_date = ?, updated_at = ? WHERE id = ?`,
		lastProcessed, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("store: update cursor: %w", err)
	}
	return nil
}

// SetQuerySetEnabled enables or disables a query set.
func (s *Store) SetQuerySetEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE query_sets SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), s.stamp(), id)
	if err != nil {
		return fmt.Errorf("store: set enabled: %w", err)
	}
	return nil
}

func scanQuerySet(sc scanner) (*QuerySet, error) {
	var q QuerySet
	var enabled int
	err := sc.Scan(&q.ID, &q.SourceID, &q.AndString, &q.OrString, &q.NotString, &q.Signature,
		&q.LastProcessedDate, &enabled, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.Enabled = enabled != 0
	return &q, nil
}
