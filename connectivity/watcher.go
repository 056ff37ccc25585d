package connectivity

import (
	"context"
	"database/sql"
	"time"
)

// Watch polls PRAGMA data_version and reloads routes whenever the database
// changed. It blocks until ctx is cancelled.
func (r *Router) Watch(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastVersion int64
	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("connectivity: initial reload failed", "error", err)
	}
	db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&lastVersion)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ver int64
			if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&ver); err != nil {
				r.logger.Warn("connectivity: data_version poll failed", "error", err)
				continue
			}
			if ver == lastVersion {
				continue
			}
			if err := r.Reload(ctx, db); err != nil {
				r.logger.Error("connectivity: reload failed", "error", err)
			}
			lastVersion = ver
		}
	}
}
