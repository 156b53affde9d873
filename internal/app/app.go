package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/newsfeed/config"
	"github.com/d60-Lab/newsfeed/internal/api"
	"github.com/d60-Lab/newsfeed/internal/api/handler"
	"github.com/d60-Lab/newsfeed/internal/repository"
	"github.com/d60-Lab/newsfeed/internal/service"
	"github.com/d60-Lab/newsfeed/pkg/auth"
	"github.com/d60-Lab/newsfeed/pkg/cache"
)

// App 组装好的服务；Worker 仅 async 模式非空
type App struct {
	Router    *gin.Engine
	Worker    *service.FanoutWorker
	Engine    *service.FanoutEngine
	Directory service.FollowerDirectory
	Timeline  service.TimelineStore
}

// New 按配置装配仓储、服务与路由；rdb 为 nil 时关闭缓存
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	store := cache.NewStore(rdb, cfg.Redis.CacheTTL)

	users := repository.NewUserRepository(db)
	follows := repository.NewFollowRepository(db)
	profiles := repository.NewProfileRepository(db)
	tweets := repository.NewTweetRepository(db)
	tasks := repository.NewFanoutTaskRepository(db)

	var timeline service.TimelineStore
	switch cfg.Timeline.Backend {
	case config.TimelineBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("timeline backend %q requires redis", cfg.Timeline.Backend)
		}
		timeline = repository.NewRedisTimelineStore(rdb, cfg.Timeline.MaxLen, 0)
	default:
		timeline = repository.NewNewsFeedRepository(db, cfg.Fanout.BatchSize)
	}

	directory := service.NewFollowerDirectory(follows, users, store)
	engine := service.NewFanoutEngine(directory, users, timeline, cfg.Fanout.FetchTimeout, cfg.Fanout.WriteTimeout)
	tweetSvc := service.NewTweetService(tweets, users, timeline, engine, service.TweetServiceOptions{
		Mode:          cfg.Fanout.Mode,
		MaxRetries:    cfg.Fanout.MaxRetries,
		RetryInterval: cfg.Fanout.RetryInterval,
	})
	feeds := service.NewNewsFeedService(timeline, tweets, users, cfg.Timeline.DefaultPageSize, cfg.Timeline.MaxPageSize)
	profileSvc := service.NewProfileService(profiles, users, store)
	tokens := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL)
	accounts := service.NewAccountService(users, profiles, directory, profileSvc, tokens)

	a := &App{Engine: engine, Directory: directory, Timeline: timeline}
	if cfg.Fanout.Mode == config.FanoutModeAsync {
		a.Worker = service.NewFanoutWorker(tasks, engine, service.FanoutWorkerOptions{
			Workers:      cfg.Fanout.Workers,
			ClaimLimit:   cfg.Fanout.ClaimLimit,
			PollInterval: cfg.Fanout.PollInterval,
			Lease:        cfg.Fanout.Lease,
			MaxAttempts:  cfg.Fanout.MaxAttempts,
			TaskTimeout:  cfg.Fanout.FetchTimeout + cfg.Fanout.WriteTimeout,
		})
	}

	h := handler.New(directory, tweetSvc, feeds, profileSvc, accounts)
	a.Router = api.NewRouter(cfg, h, tokens, healthCheck(db, rdb))
	return a, nil
}

func healthCheck(db *gorm.DB, rdb *redis.Client) api.HealthCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
