package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/perftracker/internal/deepdive"
)

func TestSnapshotStoreRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewSnapshotStore(client, time.Hour)
	ctx := context.Background()

	snap, err := store.Save(ctx, deepdive.CompareRequest{Perspective: "pid"}, sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)

	fetched, err := store.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, fetched.ID)
	assert.Equal(t, "pid", fetched.Request.Perspective)
	assert.Equal(t, 2, fetched.Result.Summary.TotalItems)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSnapshotStoreRedisExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewSnapshotStore(client, time.Minute)
	ctx := context.Background()

	snap, err := store.Save(ctx, deepdive.CompareRequest{Perspective: "zone"}, sampleResult())
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSnapshotStoreLocalFallback(t *testing.T) {
	store := NewSnapshotStore(nil, time.Hour)
	ctx := context.Background()

	snap, err := store.Save(ctx, deepdive.CompareRequest{Perspective: "mid"}, sampleResult())
	require.NoError(t, err)

	fetched, err := store.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, fetched.ID)
}
