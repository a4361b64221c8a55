package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append inserts one visit record. The timestamp is assigned by the database,
// never taken from the caller, so day bucketing cannot be skewed by client clocks.
func (r *Repository) Append(ctx context.Context, rec domain.VisitRecord) (domain.VisitRecord, error) {
	rec.VisitorID = strings.TrimSpace(rec.VisitorID)
	rec.SessionID = strings.TrimSpace(rec.SessionID)

	err := r.pool.QueryRow(ctx, `
		INSERT INTO visits (id, visitor_id, session_id, ts, page_url, referrer, view_duration, is_new_visitor)
		VALUES ($1, $2, $3, NOW(), $4, $5, 0, $6)
		RETURNING id, ts
	`, uuid.New(), rec.VisitorID, rec.SessionID, rec.PageURL, rec.Referrer, rec.IsNewVisitor).
		Scan(&rec.ID, &rec.Timestamp)
	if err != nil {
		return domain.VisitRecord{}, err
	}
	rec.ViewDuration = 0
	return rec, nil
}

// UpdateDuration blindly overwrites view_duration on the most recently created
// record for the session. Duplicate session ids therefore converge on one
// target. The prior value and the record's timestamp come back so the caller
// can adjust incremental aggregates; an unmatched session id is a no-op.
func (r *Repository) UpdateDuration(ctx context.Context, sessionID string, seconds int) (time.Time, int, bool, error) {
	sessionID = strings.TrimSpace(sessionID)

	var ts time.Time
	var prev int
	err := r.pool.QueryRow(ctx, `
		UPDATE visits v
		SET view_duration = $2
		FROM (
			SELECT id, ts, view_duration
			FROM visits
			WHERE session_id = $1
			ORDER BY ts DESC, id DESC
			LIMIT 1
		) cur
		WHERE v.id = cur.id
		RETURNING cur.ts, cur.view_duration
	`, sessionID, seconds).Scan(&ts, &prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, 0, false, nil
	}
	if err != nil {
		return time.Time{}, 0, false, err
	}
	return ts, prev, true, nil
}

// ListSince range-scans by timestamp, ascending. Used for rehydration and
// integration checks, not on the request path.
func (r *Repository) ListSince(ctx context.Context, from time.Time) ([]domain.VisitRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, visitor_id, session_id, ts, page_url, referrer, view_duration, is_new_visitor
		FROM visits
		WHERE ts >= $1
		ORDER BY ts ASC, id ASC
	`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.VisitRecord
	for rows.Next() {
		var rec domain.VisitRecord
		if err := rows.Scan(
			&rec.ID, &rec.VisitorID, &rec.SessionID, &rec.Timestamp,
			&rec.PageURL, &rec.Referrer, &rec.ViewDuration, &rec.IsNewVisitor,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count reports the total number of stored visit records.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM visits`).Scan(&n)
	return n, err
}
