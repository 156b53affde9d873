package repository

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowRepository_CreateIsIdempotent(t *testing.T) {
	db := setupDB(t)
	repo := NewFollowRepository(db)

	created, err := repo.Create(bg, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(bg, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created, "second follow must be a no-op")

	n, err := repo.CountFollowers(bg, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestFollowRepository_DeleteReturnsCount(t *testing.T) {
	db := setupDB(t)
	repo := NewFollowRepository(db)

	_, err := repo.Create(bg, "bob", "alice")
	require.NoError(t, err)

	deleted, err := repo.Delete(bg, "bob", "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	deleted, err = repo.Delete(bg, "bob", "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)

	ok, err := repo.Exists(bg, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFollowRepository_ListFollowerIDs(t *testing.T) {
	db := setupDB(t)
	repo := NewFollowRepository(db)

	ids, err := repo.ListFollowerIDs(bg, "alice")
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)

	for _, f := range []string{"bob", "carol", "dave"} {
		_, err := repo.Create(bg, f, "alice")
		require.NoError(t, err)
	}
	_, err = repo.Create(bg, "alice", "bob")
	require.NoError(t, err)

	ids, err = repo.ListFollowerIDs(bg, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol", "dave"}, ids)

	followings, err := repo.ListFollowings(bg, "alice", 0, 10)
	require.NoError(t, err)
	require.Len(t, followings, 1)
	assert.Equal(t, "bob", followings[0].FolloweeID)

	page, err := repo.ListFollowers(bg, "alice", 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestFollowRepository_DeleteByUser(t *testing.T) {
	db := setupDB(t)
	repo := NewFollowRepository(db)

	// eve 关注 alice、bob；carol 关注 eve
	for _, pair := range [][2]string{{"eve", "alice"}, {"eve", "bob"}, {"carol", "eve"}, {"carol", "alice"}} {
		_, err := repo.Create(bg, pair[0], pair[1])
		require.NoError(t, err)
	}

	affected, err := repo.DeleteByUser(bg, "eve")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob", "eve"}, affected)

	ids, err := repo.ListFollowerIDs(bg, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, ids)

	n, err := repo.CountFollowings(bg, "carol")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func BenchmarkFollowWrite(b *testing.B) {
	db := setupDB(b)
	repo := NewFollowRepository(db)

	users := make([]string, 1000)
	for i := range users {
		users[i] = userID(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		from := users[rand.Intn(len(users))]
		to := users[rand.Intn(len(users))]
		if from == to {
			continue
		}
		_, _ = repo.Create(bg, from, to)
	}
}

func BenchmarkListFollowerIDs(b *testing.B) {
	db := setupDB(b)
	repo := NewFollowRepository(db)

	// 构造：u0 有 N 个粉丝
	const N = 5000
	for i := 1; i <= N; i++ {
		_, _ = repo.Create(bg, userID(i), "u0")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = repo.ListFollowerIDs(bg, "u0")
	}
}
