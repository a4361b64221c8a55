package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/traffic-service/internal/stats"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Append(ctx context.Context, rec domain.VisitRecord) (domain.VisitRecord, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(domain.VisitRecord), args.Error(1)
}
func (m *MockRepo) UpdateDuration(ctx context.Context, sessionID string, seconds int) (time.Time, int, bool, error) {
	args := m.Called(ctx, sessionID, seconds)
	return args.Get(0).(time.Time), args.Int(1), args.Bool(2), args.Error(3)
}
func (m *MockRepo) ListSince(ctx context.Context, from time.Time) ([]domain.VisitRecord, error) {
	args := m.Called(ctx, from)
	var recs []domain.VisitRecord
	if v := args.Get(0); v != nil {
		recs = v.([]domain.VisitRecord)
	}
	return recs, args.Error(1)
}

type MockCache struct{ mock.Mock }

func (m *MockCache) GetInsights(ctx context.Context) ([]domain.DayInsight, error) {
	args := m.Called(ctx)
	var rows []domain.DayInsight
	if v := args.Get(0); v != nil {
		rows = v.([]domain.DayInsight)
	}
	return rows, args.Error(1)
}
func (m *MockCache) SetInsights(ctx context.Context, rows []domain.DayInsight, ttl time.Duration) error {
	return m.Called(ctx, rows, ttl).Error(0)
}
func (m *MockCache) InvalidateInsights(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockCache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, ip, limit, window)
	return args.Bool(0), args.Error(1)
}

func stored(in domain.VisitRecord) domain.VisitRecord {
	in.ID = uuid.New()
	in.Timestamp = time.Now()
	return in
}

func TestRecordVisit_Success(t *testing.T) {
	repo := new(MockRepo)
	cache := new(MockCache)
	svc := service.NewTrafficService(repo, stats.NewAccumulator(time.UTC), cache, time.Minute)
	ctx := context.Background()

	repo.On("Append", ctx, mock.MatchedBy(func(rec domain.VisitRecord) bool {
		return rec.VisitorID == "v1" && rec.SessionID == "s1" && rec.IsNewVisitor
	})).Return(stored(domain.VisitRecord{VisitorID: "v1", SessionID: "s1", IsNewVisitor: true}), nil)
	cache.On("InvalidateInsights", ctx).Return(nil)

	snap, err := svc.RecordVisit(ctx, service.VisitInput{
		VisitorID:    " v1 ",
		SessionID:    "s1",
		PageURL:      "/",
		IsNewVisitor: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Today.TotalVisits)
	assert.Equal(t, []string{"v1"}, snap.Today.UniqueVisitors)
	assert.Equal(t, 1, snap.Today.NewVisitors)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestRecordVisit_MissingIdentity(t *testing.T) {
	repo := new(MockRepo)
	svc := service.NewTrafficService(repo, stats.NewAccumulator(time.UTC), nil, time.Minute)

	_, err := svc.RecordVisit(context.Background(), service.VisitInput{SessionID: "s1"})
	assert.ErrorIs(t, err, domain.ErrInvalidVisit)

	_, err = svc.RecordVisit(context.Background(), service.VisitInput{VisitorID: "v1", SessionID: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidVisit)

	// nothing reached the store
	repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestRecordVisit_StoreUnavailable(t *testing.T) {
	repo := new(MockRepo)
	svc := service.NewTrafficService(repo, stats.NewAccumulator(time.UTC), nil, time.Minute)
	ctx := context.Background()

	boom := errors.New("connection refused")
	repo.On("Append", ctx, mock.Anything).Return(domain.VisitRecord{}, boom)

	_, err := svc.RecordVisit(ctx, service.VisitInput{VisitorID: "v1", SessionID: "s1"})
	assert.ErrorIs(t, err, boom)
}

func TestUpdateDuration_AdjustsAggregates(t *testing.T) {
	repo := new(MockRepo)
	acc := stats.NewAccumulator(time.UTC)
	svc := service.NewTrafficService(repo, acc, nil, time.Minute)
	ctx := context.Background()

	now := time.Now()
	acc.ApplyVisit(domain.VisitRecord{VisitorID: "v1", SessionID: "s1", Timestamp: now})

	repo.On("UpdateDuration", ctx, "s1", 42).Return(now, 0, true, nil)

	require.NoError(t, svc.UpdateDuration(ctx, "s1", 42))

	snap := svc.Stats(ctx)
	assert.InDelta(t, 42.0, snap.Today.AvgViewDuration, 1e-9)
}

func TestUpdateDuration_UnknownSessionIsSuccess(t *testing.T) {
	repo := new(MockRepo)
	svc := service.NewTrafficService(repo, stats.NewAccumulator(time.UTC), nil, time.Minute)
	ctx := context.Background()

	repo.On("UpdateDuration", ctx, "ghost", 5).Return(time.Time{}, 0, false, nil)

	assert.NoError(t, svc.UpdateDuration(ctx, "ghost", 5))
}

func TestUpdateDuration_Invalid(t *testing.T) {
	repo := new(MockRepo)
	svc := service.NewTrafficService(repo, stats.NewAccumulator(time.UTC), nil, time.Minute)

	assert.ErrorIs(t, svc.UpdateDuration(context.Background(), "  ", 5), domain.ErrInvalidVisit)
	assert.ErrorIs(t, svc.UpdateDuration(context.Background(), "s1", -1), domain.ErrInvalidDuration)
	repo.AssertNotCalled(t, "UpdateDuration", mock.Anything, mock.Anything, mock.Anything)
}

func TestInsights_CacheHit(t *testing.T) {
	cache := new(MockCache)
	svc := service.NewTrafficService(new(MockRepo), stats.NewAccumulator(time.UTC), cache, time.Minute)
	ctx := context.Background()

	cached := []domain.DayInsight{{Date: "2025-06-15", TotalVisits: 9}}
	cache.On("GetInsights", ctx).Return(cached, nil)

	assert.Equal(t, cached, svc.Insights(ctx))
	cache.AssertNotCalled(t, "SetInsights", mock.Anything, mock.Anything, mock.Anything)
}

func TestInsights_CacheMissRecomputesAndStores(t *testing.T) {
	cache := new(MockCache)
	acc := stats.NewAccumulator(time.UTC)
	svc := service.NewTrafficService(new(MockRepo), acc, cache, time.Minute)
	ctx := context.Background()

	acc.ApplyVisit(domain.VisitRecord{VisitorID: "v1", SessionID: "s1", Timestamp: time.Now(), ViewDuration: 10})

	cache.On("GetInsights", ctx).Return(nil, domain.ErrCacheMiss)
	cache.On("SetInsights", ctx, mock.Anything, time.Minute).Return(nil)

	rows := svc.Insights(ctx)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].TotalVisits)
	assert.Equal(t, float64(100), rows[0].BounceRate)
	cache.AssertExpectations(t)
}

func TestInsights_CacheErrorFallsBack(t *testing.T) {
	cache := new(MockCache)
	svc := service.NewTrafficService(new(MockRepo), stats.NewAccumulator(time.UTC), cache, time.Minute)
	ctx := context.Background()

	cache.On("GetInsights", ctx).Return(nil, errors.New("redis down"))
	cache.On("SetInsights", ctx, mock.Anything, time.Minute).Return(errors.New("still down"))

	// no panic, empty (non-nil) result from the accumulator
	rows := svc.Insights(ctx)
	require.NotNil(t, rows)
	assert.Len(t, rows, 0)
}
