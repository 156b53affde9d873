package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/newsfeed/internal/model"
)

func newTask(id, tweetID string, availableAt time.Time) *model.FanoutTask {
	return &model.FanoutTask{
		ID:             id,
		TweetID:        tweetID,
		AuthorID:       "alice",
		TweetCreatedAt: availableAt,
		Status:         model.FanoutTaskPending,
		AvailableAt:    availableAt,
	}
}

func TestTweetRepository_CreateWritesTaskInSameTransaction(t *testing.T) {
	db := setupDB(t)
	tweets := NewTweetRepository(db)
	tasks := NewFanoutTaskRepository(db)
	now := time.Now().UTC()

	tw := &model.Tweet{ID: "t1", UserID: "alice", Content: "hello world", CreatedAt: now}
	require.NoError(t, tweets.Create(bg, tw, newTask("task1", "t1", now)))

	got, err := tasks.GetByTweetID(bg, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.FanoutTaskPending, got.Status)

	// 同一推文的任务重复写入违反唯一键，推文也一并回滚
	dup := &model.Tweet{ID: "t2", UserID: "alice", Content: "hello again", CreatedAt: now}
	err = tweets.Create(bg, dup, newTask("task2", "t1", now))
	require.Error(t, err)
	_, err = tweets.GetByID(bg, "t2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFanoutTaskRepository_ClaimLifecycle(t *testing.T) {
	db := setupDB(t)
	tweets := NewTweetRepository(db)
	tasks := NewFanoutTaskRepository(db)
	now := time.Now().UTC()

	for i, id := range []string{"t1", "t2", "t3"} {
		tw := &model.Tweet{ID: id, UserID: "alice", Content: "content " + id, CreatedAt: now}
		avail := now
		if i == 2 {
			avail = now.Add(time.Hour) // 尚未到期
		}
		require.NoError(t, tweets.Create(bg, tw, newTask("task-"+id, id, avail)))
	}

	claimed, err := tasks.Claim(bg, 10, now, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for _, c := range claimed {
		assert.Equal(t, model.FanoutTaskProcessing, c.Status)
	}

	again, err := tasks.Claim(bg, 10, now, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "processing tasks inside their lease are not re-claimed")

	require.NoError(t, tasks.MarkDone(bg, claimed[0].ID, 3, now))
	require.NoError(t, tasks.MarkRetry(bg, claimed[1].ID, 1, now.Add(-time.Second), "boom"))

	retried, err := tasks.Claim(bg, 10, now, time.Minute)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, claimed[1].ID, retried[0].ID)
	assert.Equal(t, 1, retried[0].Attempts)

	require.NoError(t, tasks.MarkDead(bg, retried[0].ID, 2, "fatal", now))
	dead, err := tasks.CountByStatus(bg, model.FanoutTaskDead)
	require.NoError(t, err)
	assert.EqualValues(t, 1, dead)
	done, err := tasks.CountByStatus(bg, model.FanoutTaskDone)
	require.NoError(t, err)
	assert.EqualValues(t, 1, done)
}

func TestFanoutTaskRepository_ReclaimsExpiredLease(t *testing.T) {
	db := setupDB(t)
	tweets := NewTweetRepository(db)
	tasks := NewFanoutTaskRepository(db)
	now := time.Now().UTC()

	require.NoError(t, tweets.Create(bg, &model.Tweet{ID: "t1", UserID: "alice", Content: "content", CreatedAt: now}, newTask("task1", "t1", now)))
	claimed, err := tasks.Claim(bg, 10, now, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	later := now.Add(2 * time.Minute)
	reclaimed, err := tasks.Claim(bg, 10, later, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, "task1", reclaimed[0].ID)
}
