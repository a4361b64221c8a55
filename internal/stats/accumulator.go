package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/domain"
)

// ShortVisitThreshold is the bounce cutoff in seconds. Fixed policy, not config.
const ShortVisitThreshold = 30

const dayKeyFormat = "2006-01-02"

// dayBucket holds the incrementally maintained aggregates for one calendar day.
type dayBucket struct {
	visits      int
	newVisitors int
	durationSum int64
	shortVisits int
	visitors    map[string]struct{}
}

// Accumulator is the aggregation engine: per-day buckets keyed by ISO date in
// a fixed reference timezone, updated on every append/duration-update instead
// of rescanning the store per query. Reads never touch the store.
//
// Buckets are advisory, not audit-grade: a record written mid-read may or may
// not be observed, matching the store-level guarantee.
type Accumulator struct {
	mu   sync.RWMutex
	loc  *time.Location
	days map[string]*dayBucket
}

func NewAccumulator(loc *time.Location) *Accumulator {
	if loc == nil {
		loc = time.UTC
	}
	return &Accumulator{loc: loc, days: make(map[string]*dayBucket)}
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// WindowStart returns the inclusive lower bound of an N-calendar-day window
// ending today: startOfDay(now) - (N-1) days. A record timestamped before it
// falls outside the window even when it is less than N*24h old.
func WindowStart(now time.Time, days int, loc *time.Location) time.Time {
	return StartOfDay(now, loc).AddDate(0, 0, -(days - 1))
}

func (a *Accumulator) dayKey(ts time.Time) string {
	return ts.In(a.loc).Format(dayKeyFormat)
}

func (a *Accumulator) bucket(key string) *dayBucket {
	b, ok := a.days[key]
	if !ok {
		b = &dayBucket{visitors: make(map[string]struct{})}
		a.days[key] = b
	}
	return b
}

// ApplyVisit folds one appended record into its day bucket.
func (a *Accumulator) ApplyVisit(rec domain.VisitRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyLocked(rec)
}

func (a *Accumulator) applyLocked(rec domain.VisitRecord) {
	b := a.bucket(a.dayKey(rec.Timestamp))
	b.visits++
	if rec.IsNewVisitor {
		b.newVisitors++
	}
	b.durationSum += int64(rec.ViewDuration)
	if rec.ViewDuration < ShortVisitThreshold {
		b.shortVisits++
	}
	b.visitors[rec.VisitorID] = struct{}{}
}

// AdjustDuration applies a last-write-wins duration overwrite for a record
// created at ts. prev is the overwritten value. A bucket that was already
// compacted away is silently skipped.
func (a *Accumulator) AdjustDuration(ts time.Time, prev, next int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.days[a.dayKey(ts)]
	if !ok {
		return
	}
	b.durationSum += int64(next) - int64(prev)
	switch {
	case prev < ShortVisitThreshold && next >= ShortVisitThreshold:
		b.shortVisits--
	case prev >= ShortVisitThreshold && next < ShortVisitThreshold:
		b.shortVisits++
	}
}

// Rehydrate rebuilds all buckets from a store scan. Used at startup.
func (a *Accumulator) Rehydrate(recs []domain.VisitRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.days = make(map[string]*dayBucket)
	for _, rec := range recs {
		a.applyLocked(rec)
	}
}

// Compact drops buckets for days strictly before cutoff.
func (a *Accumulator) Compact(cutoff time.Time) {
	key := a.dayKey(cutoff)

	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.days {
		if k < key {
			delete(a.days, k)
		}
	}
}

// Summary returns the today rollup plus per-day stats for a window of `days`
// calendar days including today, newest first. Days without records are
// omitted from the historical list; today's bucket appears in both parts.
func (a *Accumulator) Summary(now time.Time, days int) domain.StatsSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := domain.StatsSnapshot{
		Today:      domain.TodayStats{UniqueVisitors: []string{}},
		Historical: []domain.DayStats{},
	}

	if b, ok := a.days[a.dayKey(now)]; ok {
		snap.Today = domain.TodayStats{
			TotalVisits:     b.visits,
			UniqueVisitors:  visitorList(b),
			AvgViewDuration: avgDuration(b),
			NewVisitors:     b.newVisitors,
		}
	}

	for _, key := range a.windowKeysDesc(now, days) {
		b, ok := a.days[key]
		if !ok {
			continue
		}
		snap.Historical = append(snap.Historical, domain.DayStats{
			Date:            key,
			Visits:          b.visits,
			UniqueVisitors:  visitorList(b),
			AvgViewDuration: avgDuration(b),
		})
	}
	return snap
}

// Insights returns per-day rows with bounce rate for a window of `days`
// calendar days including today, newest first.
func (a *Accumulator) Insights(now time.Time, days int) []domain.DayInsight {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rows := []domain.DayInsight{}
	for _, key := range a.windowKeysDesc(now, days) {
		b, ok := a.days[key]
		if !ok {
			continue
		}
		rows = append(rows, domain.DayInsight{
			Date:            key,
			TotalVisits:     b.visits,
			UniqueVisitors:  len(b.visitors),
			AvgViewDuration: avgDuration(b),
			NewVisitors:     b.newVisitors,
			BounceRate:      bounceRate(b),
		})
	}
	return rows
}

// windowKeysDesc lists the day keys of the window, today first.
func (a *Accumulator) windowKeysDesc(now time.Time, days int) []string {
	start := StartOfDay(now, a.loc)
	keys := make([]string, 0, days)
	for i := 0; i < days; i++ {
		keys = append(keys, start.AddDate(0, 0, -i).Format(dayKeyFormat))
	}
	return keys
}

// visitorList returns the distinct visitor ids, sorted for stable output.
func visitorList(b *dayBucket) []string {
	ids := make([]string, 0, len(b.visitors))
	for id := range b.visitors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func avgDuration(b *dayBucket) float64 {
	if b.visits == 0 {
		return 0
	}
	return float64(b.durationSum) / float64(b.visits)
}

func bounceRate(b *dayBucket) float64 {
	if b.visits == 0 {
		return 0
	}
	return float64(b.shortVisits) / float64(b.visits) * 100
}
