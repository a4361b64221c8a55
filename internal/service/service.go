package service

import (
	"context"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/stats"
)

const (
	// WeekWindowDays is the historical window on the stats surface.
	WeekWindowDays = 7
	// InsightsWindowDays is the historical window on the insights surface.
	InsightsWindowDays = 30
)

// VisitInput is the record-visit payload after transport decoding.
// isNewVisitor is decided client-side, once, at visitor-id assignment;
// the server records it verbatim and never recomputes it.
type VisitInput struct {
	VisitorID    string
	SessionID    string
	PageURL      string
	Referrer     string
	IsNewVisitor bool
}

type TrafficService struct {
	repo        domain.VisitRepository
	acc         *stats.Accumulator
	cache       domain.CacheRepository
	insightsTTL time.Duration
}

func NewTrafficService(repo domain.VisitRepository, acc *stats.Accumulator, cache domain.CacheRepository, insightsTTL time.Duration) *TrafficService {
	return &TrafficService{repo: repo, acc: acc, cache: cache, insightsTTL: insightsTTL}
}

// RecordVisit validates, appends the record, folds it into the day buckets
// and returns a fresh today+week snapshot for immediate display.
func (s *TrafficService) RecordVisit(ctx context.Context, in VisitInput) (domain.StatsSnapshot, error) {
	in.VisitorID = strings.TrimSpace(in.VisitorID)
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.VisitorID == "" || in.SessionID == "" {
		return domain.StatsSnapshot{}, domain.ErrInvalidVisit
	}

	rec, err := s.repo.Append(ctx, domain.VisitRecord{
		VisitorID:    in.VisitorID,
		SessionID:    in.SessionID,
		PageURL:      in.PageURL,
		Referrer:     in.Referrer,
		IsNewVisitor: in.IsNewVisitor,
	})
	if err != nil {
		return domain.StatsSnapshot{}, err
	}

	// A duration update racing in between the append and this apply can find
	// no bucket for the day's first record and is dropped from the in-memory
	// view until the next rehydrate. The store still has the value; rollups
	// are advisory, not audit-grade.
	s.acc.ApplyVisit(rec)
	s.invalidateInsights(ctx)
	return s.acc.Summary(time.Now(), WeekWindowDays), nil
}

// UpdateDuration applies a last-write-wins duration overwrite. An unknown
// session id is NOT an error: the push happens during page teardown and a
// late or duplicate update must never break that path.
func (s *TrafficService) UpdateDuration(ctx context.Context, sessionID string, seconds int) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.ErrInvalidVisit
	}
	if seconds < 0 {
		return domain.ErrInvalidDuration
	}

	ts, prev, matched, err := s.repo.UpdateDuration(ctx, sessionID, seconds)
	if err != nil {
		return err
	}
	if !matched {
		return nil
	}

	s.acc.AdjustDuration(ts, prev, seconds)
	s.invalidateInsights(ctx)
	return nil
}

// Stats serves the today + 7-day rollup from the accumulator. Reads do not
// touch the store and may legitimately differ between consecutive calls.
func (s *TrafficService) Stats(ctx context.Context) domain.StatsSnapshot {
	return s.acc.Summary(time.Now(), WeekWindowDays)
}

// Insights serves the 30-day rollup, read-through against the snapshot cache.
func (s *TrafficService) Insights(ctx context.Context) []domain.DayInsight {
	if s.cache != nil {
		if rows, err := s.cache.GetInsights(ctx); err == nil {
			return rows
		}
		// miss or redis error: recompute
	}

	rows := s.acc.Insights(time.Now(), InsightsWindowDays)
	if s.cache != nil {
		// best effort; a failed write just means the next read recomputes
		_ = s.cache.SetInsights(ctx, rows, s.insightsTTL)
	}
	return rows
}

func (s *TrafficService) invalidateInsights(ctx context.Context) {
	if s.cache == nil {
		return
	}
	// best effort; a stale snapshot ages out with its TTL anyway
	_ = s.cache.InvalidateInsights(ctx)
}
