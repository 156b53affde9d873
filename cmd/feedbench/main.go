package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/newsfeed/config"
	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/internal/repository"
	"github.com/d60-Lab/newsfeed/internal/service"
	"github.com/d60-Lab/newsfeed/pkg/cache"
	"github.com/d60-Lab/newsfeed/pkg/database"
)

// feedbench: 一个作者 N 个粉丝，连续发 POSTS 条推文，统计发推延迟、扇出落地延迟和首页读取延迟
// 环境变量 N / POSTS / BATCH / PAGE 覆盖默认参数；扇出模式和时间线后端取自配置文件

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	k = max(0, min(k, len(xs)-1))
	return xs[k]
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	rdb := must(cache.NewRedisClient(ctx, cfg.Redis))

	n := envInt("N", 20000)
	posts := envInt("POSTS", 100)
	batch := envInt("BATCH", cfg.Fanout.BatchSize)
	page := envInt("PAGE", 50)

	// 本地压测，清表保证可复现
	_ = db.Exec("TRUNCATE TABLE fanout_tasks, newsfeeds, tweets, follows, user_profiles, users").Error
	_ = rdb.FlushDB(ctx).Err()

	users := repository.NewUserRepository(db)
	follows := repository.NewFollowRepository(db)
	tweets := repository.NewTweetRepository(db)
	tasks := repository.NewFanoutTaskRepository(db)
	var timeline service.TimelineStore = repository.NewNewsFeedRepository(db, batch)
	if cfg.Timeline.Backend == config.TimelineBackendRedis {
		timeline = repository.NewRedisTimelineStore(rdb, cfg.Timeline.MaxLen, 0)
	}
	directory := service.NewFollowerDirectory(follows, users, cache.NewStore(rdb, cfg.Redis.CacheTTL))
	engine := service.NewFanoutEngine(directory, users, timeline, cfg.Fanout.FetchTimeout, cfg.Fanout.WriteTimeout)
	tweetSvc := service.NewTweetService(tweets, users, timeline, engine, service.TweetServiceOptions{
		Mode:          cfg.Fanout.Mode,
		MaxRetries:    cfg.Fanout.MaxRetries,
		RetryInterval: cfg.Fanout.RetryInterval,
	})
	feeds := service.NewNewsFeedService(timeline, tweets, users, page, page)

	// seed
	author := model.User{ID: uuid.New().String(), Username: "author0", Password: "p"}
	must(0, db.Create(&author).Error)
	fans := make([]model.User, n)
	for i := range fans {
		id := uuid.New().String()
		fans[i] = model.User{ID: id, Username: "u" + id[:8] + strconv.Itoa(i), Password: "p"}
	}
	must(0, db.CreateInBatches(&fans, 1000).Error)
	edges := make([]model.Follow, n)
	for i := range fans {
		edges[i] = model.Follow{ID: uuid.New().String(), FollowerID: fans[i].ID, FolloweeID: author.ID, CreatedAt: time.Now().UTC()}
	}
	must(0, db.CreateInBatches(&edges, 1000).Error)

	// 粉丝集合缓存：冷读 vs 热读
	st := time.Now()
	must(directory.GetFollowers(ctx, author.ID))
	cold := time.Since(st)
	st = time.Now()
	must(directory.GetFollowers(ctx, author.ID))
	warm := time.Since(st)

	var stopWorker func(context.Context) error
	if cfg.Fanout.Mode == config.FanoutModeAsync {
		worker := service.NewFanoutWorker(tasks, engine, service.FanoutWorkerOptions{
			Workers:      cfg.Fanout.Workers,
			ClaimLimit:   cfg.Fanout.ClaimLimit,
			PollInterval: cfg.Fanout.PollInterval,
			Lease:        cfg.Fanout.Lease,
			MaxAttempts:  cfg.Fanout.MaxAttempts,
		})
		stopWorker = worker.Start()
	}

	publish := make([]time.Duration, 0, posts)
	created := make([]*model.Tweet, 0, posts)
	for i := 0; i < posts; i++ {
		st := time.Now()
		t, _, err := tweetSvc.Create(ctx, author.ID, fmt.Sprintf("bench tweet %d", i))
		if err != nil {
			panic(err)
		}
		publish = append(publish, time.Since(st))
		created = append(created, t)
	}

	// 落地：最后一个粉丝的时间线出现该推文
	land := make([]time.Duration, 0, posts)
	last := fans[len(fans)-1].ID
	deadline := time.Now().Add(2 * time.Minute)
	for _, t := range created {
		for {
			entries := must(timeline.GetRecent(ctx, last, posts, nil))
			if containsTweet(entries, t.ID) {
				land = append(land, time.Since(t.CreatedAt))
				break
			}
			if time.Now().After(deadline) {
				fmt.Printf("timeout while waiting for fanout: got=%d want=%d\n", len(land), posts)
				goto PRINT
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

PRINT:
	if stopWorker != nil {
		_ = stopWorker(ctx)
	}
	fmt.Printf("N=%d POSTS=%d BATCH=%d MODE=%s BACKEND=%s\n", n, posts, batch, cfg.Fanout.Mode, cfg.Timeline.Backend)
	fmt.Printf("Follower set read: cold=%v warm=%v\n", cold, warm)
	fmt.Printf("Create tweet latency: avg=%v p95=%v p99=%v\n", avg(publish), pct(publish, 0.95), pct(publish, 0.99))
	fmt.Printf("Fanout landing (create->visible): samples=%d avg=%v p95=%v p99=%v\n", len(land), avg(land), pct(land, 0.95), pct(land, 0.99))

	reads := make([]time.Duration, 0, 20)
	var items int
	for i := 0; i < 20; i++ {
		st := time.Now()
		p := must(feeds.List(ctx, fans[i%len(fans)].ID, page, ""))
		reads = append(reads, time.Since(st))
		items = len(p.Items)
	}
	fmt.Printf("Newsfeed read (limit=%d, hydrated): avg=%v p95=%v items=%d\n", page, avg(reads), pct(reads, 0.95), items)
}

func containsTweet(entries []model.NewsFeed, id string) bool {
	for _, e := range entries {
		if e.TweetID == id {
			return true
		}
	}
	return false
}
