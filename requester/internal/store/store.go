// Package store is the SQLite data access layer for sources, attribution
// entities, request history, articles and keyword sets.
package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/hazyhaar/newsnexus/idgen"
)

// ErrDuplicateURL is returned by CreateArticle when the url is already stored.
var ErrDuplicateURL = errors.New("store: article url already exists")

// Store wraps the application database.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the ID generator (tests use idgen.Sequence).
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Store) { s.newID = g }
}

// WithClock overrides the clock used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{DB: db, newID: idgen.Default, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) stamp() int64 { return s.now().UnixMilli() }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
