package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fireflies-dealcloud-sync/internal/common/database"
)

func TestMemorySet(t *testing.T) {
	ctx := context.Background()
	set := NewMemorySet()

	ok, err := set.Contains(ctx, "tr-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, set.AddAll(ctx, []string{"tr-1", "tr-2"}))

	ok, err = set.Contains(ctx, "tr-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = set.Contains(ctx, "tr-3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSet(t *testing.T) {
	mr := miniredis.RunT(t)

	client := &database.RedisClient{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	set := NewRedisSet(client, "sync:processed-transcripts")

	ok, err := set.Contains(ctx, "tr-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, set.AddAll(ctx, []string{"tr-1", "tr-2"}))

	ok, err = set.Contains(ctx, "tr-2")
	require.NoError(t, err)
	assert.True(t, ok)

	// Empty input is a no-op, not an error.
	require.NoError(t, set.AddAll(ctx, nil))
}
