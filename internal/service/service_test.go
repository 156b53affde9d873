package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/internal/repository"
	"github.com/d60-Lab/newsfeed/pkg/cache"
	"github.com/d60-Lab/newsfeed/pkg/database"
)

var bg = context.Background()

// base 对应时间轴 t=0，at(100) 即 t=100
var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

type testEnv struct {
	db  *gorm.DB
	mr  *miniredis.Miniredis
	rdb *redis.Client

	cache     *cache.Store
	users     repository.UserRepository
	follows   repository.FollowRepository
	profiles  repository.ProfileRepository
	tweets    repository.TweetRepository
	timeline  repository.NewsFeedRepository
	tasks     repository.FanoutTaskRepository
	directory FollowerDirectory
	engine    *FanoutEngine
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := &testEnv{db: db, mr: mr, rdb: rdb}
	e.cache = cache.NewStore(rdb, time.Minute)
	e.users = repository.NewUserRepository(db)
	e.follows = repository.NewFollowRepository(db)
	e.profiles = repository.NewProfileRepository(db)
	e.tweets = repository.NewTweetRepository(db)
	// 小批次，覆盖分块写入
	e.timeline = repository.NewNewsFeedRepository(db, 2)
	e.tasks = repository.NewFanoutTaskRepository(db)
	e.directory = NewFollowerDirectory(e.follows, e.users, e.cache)
	e.engine = NewFanoutEngine(e.directory, e.users, e.timeline, time.Second, time.Second)
	return e
}

func (e *testEnv) seedUsers(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, e.users.Create(bg, &model.User{ID: id, Username: id, Password: "x"}))
	}
}

func (e *testEnv) follow(t *testing.T, follower, followee string) {
	t.Helper()
	_, err := e.directory.Follow(bg, follower, followee)
	require.NoError(t, err)
}

// post 写入推文行并同步扇出
func (e *testEnv) post(t *testing.T, author, tweetID string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, e.tweets.Create(bg, &model.Tweet{ID: tweetID, UserID: author, Content: "hello " + tweetID, CreatedAt: createdAt}, nil))
	_, err := e.engine.Fanout(bg, FanoutRequest{TweetID: tweetID, AuthorID: author, TweetCreatedAt: createdAt})
	require.NoError(t, err)
}

func (e *testEnv) feed(t *testing.T, owner string) []string {
	t.Helper()
	entries, err := e.timeline.GetRecent(bg, owner, 100, nil)
	require.NoError(t, err)
	ids := make([]string, len(entries))
	for i, en := range entries {
		ids[i] = en.TweetID
	}
	return ids
}

// flakyStore 前 failures 次 AppendBatch 失败
type flakyStore struct {
	TimelineStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) AppendBatch(ctx context.Context, entries []model.NewsFeed) (int64, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return 0, errors.New("timeline unavailable")
	}
	return f.TimelineStore.AppendBatch(ctx, entries)
}

func (f *flakyStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fanouterFunc func(ctx context.Context, req FanoutRequest) (*FanoutResult, error)

func (f fanouterFunc) Fanout(ctx context.Context, req FanoutRequest) (*FanoutResult, error) {
	return f(ctx, req)
}
