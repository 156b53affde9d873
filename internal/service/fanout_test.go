package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/newsfeed/internal/model"
)

func TestFanout_ScenarioA_AuthorAndFollowers(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "bob", "carol")
	e.follow(t, "bob", "alice")
	e.follow(t, "carol", "alice")

	res, err := e.engine.Fanout(bg, FanoutRequest{TweetID: "T1", AuthorID: "alice", TweetCreatedAt: at(100)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Recipients)
	assert.EqualValues(t, 3, res.Written)

	for _, u := range []string{"alice", "bob", "carol"} {
		assert.Equal(t, []string{"T1"}, e.feed(t, u), u)
	}
}

func TestFanout_ScenarioB_UnfollowStopsDelivery(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "bob")
	e.follow(t, "bob", "alice")
	_, err := e.engine.Fanout(bg, FanoutRequest{TweetID: "T1", AuthorID: "alice", TweetCreatedAt: at(100)})
	require.NoError(t, err)

	_, err = e.directory.Unfollow(bg, "bob", "alice")
	require.NoError(t, err)
	_, err = e.engine.Fanout(bg, FanoutRequest{TweetID: "T2", AuthorID: "alice", TweetCreatedAt: at(200)})
	require.NoError(t, err)

	// 已送达的 T1 保留，T2 不再送达
	assert.Equal(t, []string{"T1"}, e.feed(t, "bob"))
	assert.Equal(t, []string{"T2", "T1"}, e.feed(t, "alice"))
}

func TestFanout_ScenarioC_FollowThenPostSeesNewFollower(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "dave")

	// 先把旧的粉丝集合读进缓存
	followers, err := e.directory.GetFollowers(bg, "alice")
	require.NoError(t, err)
	require.Empty(t, followers)

	e.follow(t, "dave", "alice")
	_, err = e.engine.Fanout(bg, FanoutRequest{TweetID: "T3", AuthorID: "alice", TweetCreatedAt: at(300)})
	require.NoError(t, err)

	assert.Equal(t, []string{"T3"}, e.feed(t, "dave"))
}

func TestFanout_ScenarioD_RetryAfterPartialSuccess(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "bob", "carol", "dave")
	e.follow(t, "bob", "alice")
	e.follow(t, "carol", "alice")
	e.follow(t, "dave", "alice")

	// 上一次尝试只写入了部分收件人
	score := model.ScoreOf(at(400))
	_, err := e.timeline.AppendBatch(bg, []model.NewsFeed{
		{UserID: "alice", TweetID: "T4", Score: score, TweetCreatedAt: at(400)},
		{UserID: "bob", TweetID: "T4", Score: score, TweetCreatedAt: at(400)},
	})
	require.NoError(t, err)

	res, err := e.engine.Fanout(bg, FanoutRequest{TweetID: "T4", AuthorID: "alice", TweetCreatedAt: at(400)})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Recipients)
	assert.EqualValues(t, 2, res.Written)

	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		assert.Equal(t, []string{"T4"}, e.feed(t, u), u)
	}
}

func TestFanout_RetryableWriteFailureThenSuccess(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "bob")
	e.follow(t, "bob", "alice")
	store := &flakyStore{TimelineStore: e.timeline, failures: 1}
	engine := NewFanoutEngine(e.directory, e.users, store, time.Second, time.Second)
	req := FanoutRequest{TweetID: "T1", AuthorID: "alice", TweetCreatedAt: at(100)}

	_, err := engine.Fanout(bg, req)
	require.Error(t, err)
	var fe *FanoutError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FanoutBatchSubmitted, fe.State)
	assert.True(t, IsRetryable(err))
	assert.Empty(t, e.feed(t, "bob"))

	_, err = engine.Fanout(bg, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, e.feed(t, "bob"))
}

func TestFanout_MissingAuthorIsFatal(t *testing.T) {
	e := newEnv(t)

	_, err := e.engine.Fanout(bg, FanoutRequest{TweetID: "T1", AuthorID: "ghost", TweetCreatedAt: at(100)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthorNotFound)
	assert.False(t, IsRetryable(err))
	assert.Empty(t, e.feed(t, "ghost"))
}

type slowFollowers struct{ delay time.Duration }

func (s slowFollowers) GetFollowers(ctx context.Context, _ string) ([]string, error) {
	select {
	case <-time.After(s.delay):
		return []string{"bob"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestFanout_FollowerFetchTimeoutWritesNothing(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "bob")
	engine := NewFanoutEngine(slowFollowers{delay: time.Second}, e.users, e.timeline, 20*time.Millisecond, time.Second)

	_, err := engine.Fanout(bg, FanoutRequest{TweetID: "T1", AuthorID: "alice", TweetCreatedAt: at(100)})
	require.Error(t, err)
	var fe *FanoutError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FanoutPending, fe.State)
	assert.True(t, fe.Retryable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Empty(t, e.feed(t, "alice"))
	assert.Empty(t, e.feed(t, "bob"))
}

func TestFanout_RejectsEmptyRequest(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.Fanout(bg, FanoutRequest{AuthorID: "alice"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFanout_OrderingWithTies(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "bob")
	e.follow(t, "bob", "alice")

	for _, id := range []string{"T-b", "T-c", "T-a"} {
		_, err := e.engine.Fanout(bg, FanoutRequest{TweetID: id, AuthorID: "alice", TweetCreatedAt: at(100)})
		require.NoError(t, err)
	}
	_, err := e.engine.Fanout(bg, FanoutRequest{TweetID: "T-0", AuthorID: "alice", TweetCreatedAt: at(50)})
	require.NoError(t, err)
	_, err = e.engine.Fanout(bg, FanoutRequest{TweetID: "T-z", AuthorID: "alice", TweetCreatedAt: at(150)})
	require.NoError(t, err)

	assert.Equal(t, []string{"T-z", "T-c", "T-b", "T-a", "T-0"}, e.feed(t, "bob"))
}

func TestFanout_ConcurrentTweets(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "bob", "carol")
	e.follow(t, "bob", "alice")
	e.follow(t, "carol", "alice")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.engine.Fanout(bg, FanoutRequest{
				TweetID:        fmt.Sprintf("T%02d", i),
				AuthorID:       "alice",
				TweetCreatedAt: at(i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for _, u := range []string{"alice", "bob", "carol"} {
		assert.Len(t, e.feed(t, u), 10, u)
	}
}

func TestBuildEntries_AuthorFirstAndDeduplicated(t *testing.T) {
	req := FanoutRequest{TweetID: "T1", AuthorID: "alice", TweetCreatedAt: at(1)}
	entries := buildEntries(req, []string{"bob", "alice", "bob", "", "carol"})

	owners := make([]string, len(entries))
	for i, en := range entries {
		owners[i] = en.UserID
		assert.Equal(t, model.ScoreOf(at(1)), en.Score)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, owners)
}
