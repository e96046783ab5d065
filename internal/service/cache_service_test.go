package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCache struct{ err error }

func (f failingCache) Get(context.Context, string, interface{}) error { return f.err }
func (f failingCache) Set(context.Context, string, interface{}, time.Duration) error { return f.err }
func (f failingCache) DeleteByPattern(context.Context, string) error { return f.err }

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	var nilService *CacheService
	hit, err := nilService.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, nilService.InvalidateTimetables(context.Background()))

	disabled := NewCacheService(newMemoryCache(), nil, 0, nil, false)
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.Set(context.Background(), "k", "v", 0))
}

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, BatchViewKey("b-1"), map[string]string{"name": "CSE-4A"}, 0))
	var out map[string]string
	hit, err := svc.Get(ctx, BatchViewKey("b-1"), &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "CSE-4A", out["name"])

	require.NoError(t, svc.InvalidateTimetables(ctx))
	assert.Equal(t, []string{"timetable:view:*"}, repo.patterns)
	hit, err = svc.Get(ctx, BatchViewKey("b-1"), &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	svc := NewCacheService(failingCache{err: errors.New("connection refused")}, nil, time.Minute, nil, true)
	hit, err := svc.Get(context.Background(), FacultyViewKey("f-1"), &struct{}{})
	assert.Error(t, err)
	assert.False(t, hit)
	assert.Error(t, svc.InvalidateTimetables(context.Background()))
}

func TestViewKeys(t *testing.T) {
	assert.Equal(t, "timetable:view:batch:b-1", BatchViewKey("b-1"))
	assert.Equal(t, "timetable:view:faculty:f-1", FacultyViewKey("f-1"))
}
