package store

import (
	"database/sql"
	"fmt"
)

// Schema is the application schema. Dates of request windows are stored
// as YYYY-MM-DD text; timestamps as unix milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	name_of_org TEXT NOT NULL UNIQUE,
	url         TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL UNIQUE REFERENCES sources(id) ON DELETE CASCADE,
	name       TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS news_api_requests (
	id                 TEXT PRIMARY KEY,
	source_id          TEXT NOT NULL REFERENCES sources(id),
	url                TEXT NOT NULL,
	and_string         TEXT NOT NULL DEFAULT '',
	or_string          TEXT NOT NULL DEFAULT '',
	not_string         TEXT NOT NULL DEFAULT '',
	signature          TEXT NOT NULL,
	date_start         TEXT NOT NULL,
	date_end           TEXT NOT NULL,
	status             TEXT NOT NULL CHECK(status IN ('success', 'error')),
	error              TEXT NOT NULL DEFAULT '',
	count_received     INTEGER NOT NULL DEFAULT 0,
	count_saved        INTEGER NOT NULL DEFAULT 0,
	is_from_automation INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_signature
	ON news_api_requests(source_id, signature, status, date_end);
CREATE INDEX IF NOT EXISTS idx_requests_created ON news_api_requests(created_at);

CREATE TABLE IF NOT EXISTS articles (
	id               TEXT PRIMARY KEY,
	url              TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	publication_name TEXT NOT NULL DEFAULT '',
	published_date   TEXT NOT NULL DEFAULT '',
	entity_id        TEXT NOT NULL REFERENCES entities(id),
	request_id       TEXT NOT NULL REFERENCES news_api_requests(id),
	created_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_request ON articles(request_id);

CREATE TABLE IF NOT EXISTS article_contents (
	id         TEXT PRIMARY KEY,
	article_id TEXT NOT NULL UNIQUE REFERENCES articles(id) ON DELETE CASCADE,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS query_sets (
	id                  TEXT PRIMARY KEY,
	source_id           TEXT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	and_string          TEXT NOT NULL DEFAULT '',
	or_string           TEXT NOT NULL DEFAULT '',
	not_string          TEXT NOT NULL DEFAULT '',
	signature           TEXT NOT NULL,
	last_processed_date TEXT NOT NULL,
	enabled             INTEGER NOT NULL DEFAULT 1,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL,
	UNIQUE(source_id, signature)
);
`

// ApplySchema creates all tables and indexes.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}
