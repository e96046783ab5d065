package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest []string
	assert.ErrorIs(t, repo.Get(ctx, "timetable:batch:b1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "timetable:batch:b1", []string{"x"}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "timetable:batch:b1"))
	assert.NoError(t, repo.DeleteByPattern(ctx, "timetable:*"))
	assert.NoError(t, repo.Close())
}

func TestLockRepositoryReportsUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	repo := NewLockRepository(client, "")

	_, ok, err := repo.Acquire(context.Background(), "slot:wednesday:10:00", time.Second)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "acquire lock slot:wednesday:10:00")
}
