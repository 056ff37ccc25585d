package connectivity

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema defines the routes table. Strategies:
//   - "local": dispatch to the handler registered via RegisterLocal.
//   - "http":  POST the payload to endpoint.
//   - "noop":  succeed without doing anything.
//
// config holds per-route JSON such as {"timeout_ms": 5000}.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    service_name TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL CHECK(strategy IN ('local', 'http', 'noop')),
    endpoint     TEXT,
    config       TEXT DEFAULT '{}',
    updated_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
`

// Init creates the routes table if it doesn't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// SetRoute upserts a route row. The next Reload (or Watch tick) applies it.
func SetRoute(ctx context.Context, db *sql.DB, service, strategy, endpoint, config string) error {
	if config == "" {
		config = "{}"
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO routes (service_name, strategy, endpoint, config)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service_name) DO UPDATE SET
			strategy = excluded.strategy,
			endpoint = excluded.endpoint,
			config = excluded.config,
			updated_at = strftime('%s', 'now')`,
		service, strategy, endpoint, config)
	if err != nil {
		return fmt.Errorf("connectivity: set route %s: %w", service, err)
	}
	return nil
}
