package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/newsnexus/dbopen"
)

// EnsureSource returns the source named nameOfOrg, creating it and its
// attribution entity if needed. An existing source keeps its URL.
func (s *Store) EnsureSource(ctx context.Context, nameOfOrg, baseURL string) (*Source, error) {
	if src, err := s.FindSourceByName(ctx, nameOfOrg); err != nil || src != nil {
		return src, err
	}

	now := s.stamp()
	src := &Source{ID: s.newID(), NameOfOrg: nameOfOrg, URL: baseURL, CreatedAt: now}
	ent := &Entity{ID: s.newID(), SourceID: src.ID, Name: nameOfOrg, CreatedAt: now}

	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sources (id, name_of_org, url, created_at) VALUES (?, ?, ?, ?)`,
			src.ID, src.NameOfOrg, src.URL, src.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entities (id, source_id, name, created_at) VALUES (?, ?, ?, ?)`,
			ent.ID, ent.SourceID, ent.Name, ent.CreatedAt)
		return err
	})
	if isUniqueViolation(err) {
		return s.FindSourceByName(ctx, nameOfOrg)
	}
	if err != nil {
		return nil, fmt.Errorf("store: ensure source: %w", err)
	}
	src.Entity = ent
	return src, nil
}

// FindSourceByName returns the source with its attribution entity, or
// nil when no source has that name. Entity is nil if none is linked.
func (s *Store) FindSourceByName(ctx context.Context, nameOfOrg string) (*Source, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT s.id, s.name_of_org, s.url, s.created_at,
			e.id, e.name, e.created_at
		FROM sources s
		LEFT JOIN entities e ON e.source_id = s.id
		WHERE s.name_of_org = ?`, nameOfOrg)

	var src Source
	var entID, entName sql.NullString
	var entCreated sql.NullInt64
	err := row.Scan(&src.ID, &src.NameOfOrg, &src.URL, &src.CreatedAt, &entID, &entName, &entCreated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find source: %w", err)
	}
	if entID.Valid {
		src.Entity = &Entity{ID: entID.String, SourceID: src.ID, Name: entName.String, CreatedAt: entCreated.Int64}
	}
	return &src, nil
}

// UpdateSourceURL changes the base URL of a source.
func (s *Store) UpdateSourceURL(ctx context.Context, id, baseURL string) error {
	_, err := dbopen.Exec(ctx, s.DB, `UPDATE sources SET url = ? WHERE id = ?`, baseURL, id)
	if err != nil {
		return fmt.Errorf("store: update source url: %w", err)
	}
	return nil
}
