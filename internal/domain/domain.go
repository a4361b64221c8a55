package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidVisit    = errors.New("visitorId and sessionId are required")
	ErrInvalidDuration = errors.New("duration must be a non-negative integer")

	ErrCacheMiss = errors.New("cache miss")
)

// VisitRecord is one recorded page-load. Append-only: view_duration is the
// only field that changes after creation (blind overwrite, last write wins).
type VisitRecord struct {
	ID           uuid.UUID
	VisitorID    string
	SessionID    string
	Timestamp    time.Time // set by the store at insert time; client clocks are never trusted
	PageURL      string
	Referrer     string
	ViewDuration int // whole seconds
	IsNewVisitor bool
}

// TodayStats keeps uniqueVisitors as the raw id set: the 7-day dashboard
// reads .length on it, so the array form is part of the wire contract.
type TodayStats struct {
	TotalVisits     int      `json:"totalVisits"`
	UniqueVisitors  []string `json:"uniqueVisitors"`
	AvgViewDuration float64  `json:"avgViewDuration"`
	NewVisitors     int      `json:"newVisitors"`
}

type DayStats struct {
	Date            string   `json:"_id"` // YYYY-MM-DD in the reference timezone
	Visits          int      `json:"visits"`
	UniqueVisitors  []string `json:"uniqueVisitors"`
	AvgViewDuration float64  `json:"avgViewDuration"`
}

// DayInsight reports uniqueVisitors as a cardinality, not a set.
type DayInsight struct {
	Date            string  `json:"_id"`
	TotalVisits     int     `json:"totalVisits"`
	UniqueVisitors  int     `json:"uniqueVisitors"`
	AvgViewDuration float64 `json:"avgViewDuration"`
	NewVisitors     int     `json:"newVisitors"`
	BounceRate      float64 `json:"bounceRate"` // 0..100
}

// StatsSnapshot is the today + trailing-week view served by /traffic/stats
// and bundled into the record-visit response.
type StatsSnapshot struct {
	Today      TodayStats `json:"today"`
	Historical []DayStats `json:"historical"`
}

// VisitRepository is the storage collaborator: a durable append-only
// collection with a timestamp range scan and a point update by session id.
type VisitRepository interface {
	// Append stores the record and returns it with ID and Timestamp filled in.
	Append(ctx context.Context, rec VisitRecord) (VisitRecord, error)

	// UpdateDuration overwrites view_duration on the most recently created
	// record for sessionID. An unknown session id is a no-op, not an error.
	// On a match it reports the record's timestamp and prior duration so
	// incremental aggregates can be adjusted.
	UpdateDuration(ctx context.Context, sessionID string, seconds int) (prevTS time.Time, prevDuration int, matched bool, err error)

	// ListSince returns records with Timestamp >= from, ascending.
	ListSince(ctx context.Context, from time.Time) ([]VisitRecord, error)
}

type CacheRepository interface {
	GetInsights(ctx context.Context) ([]DayInsight, error) // ErrCacheMiss when absent
	SetInsights(ctx context.Context, rows []DayInsight, ttl time.Duration) error
	InvalidateInsights(ctx context.Context) error

	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}
