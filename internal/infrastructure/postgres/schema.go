package postgres

import "context"

// EnsureSchema creates the visits table and its indexes if absent. Idempotent,
// run at startup before the repository is used.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS visits (
			id             uuid PRIMARY KEY,
			visitor_id     text NOT NULL,
			session_id     text NOT NULL,
			ts             timestamptz NOT NULL DEFAULT NOW(),
			page_url       text NOT NULL DEFAULT '',
			referrer       text NOT NULL DEFAULT '',
			view_duration  integer NOT NULL DEFAULT 0,
			is_new_visitor boolean NOT NULL DEFAULT false
		);
		CREATE INDEX IF NOT EXISTS visits_ts_idx ON visits (ts);
		CREATE INDEX IF NOT EXISTS visits_session_ts_idx ON visits (session_id, ts DESC);
	`)
	return err
}
