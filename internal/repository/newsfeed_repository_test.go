package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/newsfeed/internal/model"
)

func TestNewsFeedRepository_AppendBatchIdempotent(t *testing.T) {
	db := setupDB(t)
	repo := NewNewsFeedRepository(db, 2)
	at := time.Unix(100, 0).UTC()
	batch := []model.NewsFeed{entry("alice", "t1", at), entry("bob", "t1", at), entry("carol", "t1", at)}

	n, err := repo.AppendBatch(bg, batch)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = repo.AppendBatch(bg, batch)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	var total int64
	require.NoError(t, db.Model(&model.NewsFeed{}).Count(&total).Error)
	assert.EqualValues(t, 3, total)
}

func TestNewsFeedRepository_AppendBatchCompletesPartialWrite(t *testing.T) {
	db := setupDB(t)
	repo := NewNewsFeedRepository(db, 10)
	at := time.Unix(400, 0).UTC()

	_, err := repo.AppendBatch(bg, []model.NewsFeed{entry("bob", "t4", at)})
	require.NoError(t, err)

	n, err := repo.AppendBatch(bg, []model.NewsFeed{entry("alice", "t4", at), entry("bob", "t4", at), entry("carol", "t4", at)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestNewsFeedRepository_AppendBatchIsAtomic(t *testing.T) {
	db := setupDB(t)
	repo := NewNewsFeedRepository(db, 2)
	at := time.Unix(100, 0).UTC()

	creates := 0
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_second_chunk", func(tx *gorm.DB) {
		if tx.Statement.Table != "newsfeeds" {
			return
		}
		creates++
		if creates == 2 {
			_ = tx.AddError(errors.New("storage unavailable"))
		}
	}))

	_, err := repo.AppendBatch(bg, []model.NewsFeed{
		entry("u1", "t1", at), entry("u2", "t1", at), entry("u3", "t1", at), entry("u4", "t1", at),
	})
	require.Error(t, err)

	var total int64
	require.NoError(t, db.Model(&model.NewsFeed{}).Count(&total).Error)
	assert.Zero(t, total, "a failed batch must leave no entries behind")
}

func TestNewsFeedRepository_GetRecentOrderingAndCursor(t *testing.T) {
	db := setupDB(t)
	repo := NewNewsFeedRepository(db, 100)
	t100 := time.Unix(100, 0).UTC()
	t200 := time.Unix(200, 0).UTC()

	_, err := repo.AppendBatch(bg, []model.NewsFeed{
		entry("bob", "t-a", t100),
		entry("bob", "t-c", t200),
		entry("bob", "t-b", t200), // 同一时刻，按 tweet_id 倒序
		entry("bob", "t-d", time.Unix(50, 0).UTC()),
		entry("carol", "t-x", t200),
	})
	require.NoError(t, err)

	all, err := repo.GetRecent(bg, "bob", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-c", "t-b", "t-a", "t-d"}, tweetIDs(all))

	page1, err := repo.GetRecent(bg, "bob", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-c", "t-b"}, tweetIDs(page1))

	last := page1[len(page1)-1]
	page2, err := repo.GetRecent(bg, "bob", 2, &model.FeedCursor{Score: last.Score, TweetID: last.TweetID})
	require.NoError(t, err)
	assert.Equal(t, []string{"t-a", "t-d"}, tweetIDs(page2))
	assert.True(t, page2[0].TweetCreatedAt.Equal(t100))
}

func TestNewsFeedRepository_CursorStableUnderHeadInserts(t *testing.T) {
	db := setupDB(t)
	repo := NewNewsFeedRepository(db, 100)
	_, err := repo.AppendBatch(bg, []model.NewsFeed{
		entry("bob", "t1", time.Unix(10, 0)), entry("bob", "t2", time.Unix(20, 0)), entry("bob", "t3", time.Unix(30, 0)),
	})
	require.NoError(t, err)

	page1, err := repo.GetRecent(bg, "bob", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t3", "t2"}, tweetIDs(page1))

	_, err = repo.AppendBatch(bg, []model.NewsFeed{entry("bob", "t4", time.Unix(40, 0))})
	require.NoError(t, err)

	last := page1[len(page1)-1]
	page2, err := repo.GetRecent(bg, "bob", 2, &model.FeedCursor{Score: last.Score, TweetID: last.TweetID})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, tweetIDs(page2))
}

func TestNewsFeedRepository_DeleteByTweet(t *testing.T) {
	db := setupDB(t)
	repo := NewNewsFeedRepository(db, 100)
	at := time.Unix(100, 0)
	_, err := repo.AppendBatch(bg, []model.NewsFeed{entry("alice", "t1", at), entry("bob", "t1", at), entry("bob", "t2", at)})
	require.NoError(t, err)

	n, err := repo.DeleteByTweet(bg, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	cnt, err := repo.Count(bg, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 1, cnt)
}

func TestNewsFeedRepository_GetRecentNonPositiveLimit(t *testing.T) {
	db := setupDB(t)
	repo := NewNewsFeedRepository(db, 100)
	_, err := repo.AppendBatch(bg, []model.NewsFeed{entry("alice", "t1", time.Unix(100, 0))})
	require.NoError(t, err)

	for _, limit := range []int{0, -1} {
		res, err := repo.GetRecent(bg, "alice", limit, nil)
		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Empty(t, res)
	}
}
