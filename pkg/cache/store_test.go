package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Minute), mr
}

func TestGetOrLoad_FillsOnMissAndHitsAfter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	v, hit, err := GetOrLoad(ctx, s, "followers:u1", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"a", "b"}, v)

	v, hit, err = GetOrLoad(ctx, s, "followers:u1", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a", "b"}, v)
	assert.Equal(t, 1, calls)
}

func TestGetOrLoad_CachesEmptySet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{}, nil
	}
	_, _, err := GetOrLoad(ctx, s, "k", load)
	require.NoError(t, err)
	v, hit, err := GetOrLoad(ctx, s, "k", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Empty(t, v)
	assert.Equal(t, 1, calls)
}

func TestInvalidate_ForcesReload(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	value := []string{"a"}
	load := func(context.Context) ([]string, error) { return value, nil }

	_, _, err := GetOrLoad(ctx, s, "k", load)
	require.NoError(t, err)

	value = []string{"a", "b"}
	require.NoError(t, s.Invalidate(ctx, "k"))

	v, hit, err := GetOrLoad(ctx, s, "k", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestFill_DroppedWhenInvalidatedDuringLoad(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	// the load observes the old state, then a mutation invalidates before the fill
	load := func(ctx context.Context) ([]string, error) {
		require.NoError(t, s.Invalidate(ctx, "k"))
		return []string{"stale"}, nil
	}
	v, hit, err := GetOrLoad(ctx, s, "k", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"stale"}, v)
	assert.False(t, mr.Exists("k"), "stale value must not be cached")
}

func TestGetOrLoad_FallsBackWhenRedisDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	v, hit, err := GetOrLoad(context.Background(), s, "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v)
}

func TestGetOrLoad_PropagatesLoadError(t *testing.T) {
	s, mr := newTestStore(t)
	boom := errors.New("db down")
	_, _, err := GetOrLoad(context.Background(), s, "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestNilStoreAlwaysLoads(t *testing.T) {
	s := NewStore(nil, time.Minute)
	assert.False(t, s.Enabled())
	require.NoError(t, s.Invalidate(context.Background(), "k"))
	v, hit, err := GetOrLoad(context.Background(), s, "k", func(context.Context) (string, error) { return "x", nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "x", v)
}
