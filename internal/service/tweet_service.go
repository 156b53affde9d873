package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/newsfeed/config"
	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/internal/repository"
	"github.com/d60-Lab/newsfeed/pkg/logger"
)

// FanoutStatus 发推接口返回的扇出状态
type FanoutStatus string

const (
	// FanoutStatusCompleted 已写入全部时间线（sync 模式）
	FanoutStatusCompleted FanoutStatus = "completed"
	// FanoutStatusEnqueued 仅表示任务已与推文同事务入队，尚未扇出（async 模式）
	FanoutStatusEnqueued FanoutStatus = "enqueued"
)

type TweetServiceOptions struct {
	Mode          string // config.FanoutModeSync / config.FanoutModeAsync
	MaxRetries    int
	RetryInterval time.Duration
}

// TweetService 发推：校验、落库并触发一次扇出
type TweetService struct {
	tweets   repository.TweetRepository
	users    repository.UserRepository
	store    TimelineStore
	engine   Fanouter
	opts     TweetServiceOptions
	validate *validator.Validate
	now      func() time.Time
}

func NewTweetService(tweets repository.TweetRepository, users repository.UserRepository, store TimelineStore, engine Fanouter, opts TweetServiceOptions) *TweetService {
	if opts.Mode == "" {
		opts.Mode = config.FanoutModeSync
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 100 * time.Millisecond
	}
	return &TweetService{
		tweets:   tweets,
		users:    users,
		store:    store,
		engine:   engine,
		opts:     opts,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create 创建推文
//
// sync：推文提交后同步扇出，可重试错误按退避重试 MaxRetries 次；最终失败时推文已存在，
// 错误仍返回给调用方（发推失败），这是同步写扩散的已知取舍。
// async：推文与扇出任务同事务提交，返回 FanoutStatusEnqueued。
func (s *TweetService) Create(ctx context.Context, authorID, content string) (*model.Tweet, FanoutStatus, error) {
	content = strings.TrimSpace(content)
	if err := s.validate.Var(content, "required,min=6,max=140"); err != nil {
		return nil, "", fmt.Errorf("%w: content must be 6-140 characters", ErrInvalidInput)
	}
	ok, err := s.users.Exists(ctx, authorID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrUserNotFound
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, "", err
	}
	// 精度统一到微秒，与时间线 score 以及 postgres timestamp 一致
	createdAt := s.now().Truncate(time.Microsecond)
	tweet := &model.Tweet{ID: id.String(), UserID: authorID, Content: content, CreatedAt: createdAt}

	if s.opts.Mode == config.FanoutModeAsync {
		task := &model.FanoutTask{
			ID:             uuid.New().String(),
			TweetID:        tweet.ID,
			AuthorID:       authorID,
			TweetCreatedAt: createdAt,
			Status:         model.FanoutTaskPending,
			AvailableAt:    createdAt,
			CreatedAt:      createdAt,
		}
		if err := s.tweets.Create(ctx, tweet, task); err != nil {
			return nil, "", err
		}
		return tweet, FanoutStatusEnqueued, nil
	}

	if err := s.tweets.Create(ctx, tweet, nil); err != nil {
		return nil, "", err
	}
	req := FanoutRequest{TweetID: tweet.ID, AuthorID: authorID, TweetCreatedAt: createdAt}
	if err := s.fanoutWithRetry(ctx, req); err != nil {
		logger.Error("tweet persisted but fanout failed",
			zap.String("tweet_id", tweet.ID), zap.Bool("retryable", IsRetryable(err)), zap.Error(err))
		return tweet, "", err
	}
	return tweet, FanoutStatusCompleted, nil
}

func (s *TweetService) fanoutWithRetry(ctx context.Context, req FanoutRequest) error {
	var lastErr error
	op := func() error {
		_, err := s.engine.Fanout(ctx, req)
		lastErr = err
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.opts.RetryInterval
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if s.opts.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(eb, uint64(s.opts.MaxRetries))
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if err != nil && lastErr != nil && ctx.Err() != nil {
		// 请求已结束：返回最后一次扇出错误而非 ctx.Err()
		return lastErr
	}
	return err
}

func (s *TweetService) Get(ctx context.Context, id string) (*model.Tweet, error) {
	t, err := s.tweets.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTweetNotFound
	}
	return t, err
}

func (s *TweetService) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Tweet, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.tweets.ListByUser(ctx, userID, limit)
}

// Delete 作者删除推文，同时移除其时间线项；移除失败只记日志，读路径容忍悬空项
func (s *TweetService) Delete(ctx context.Context, userID, tweetID string) error {
	t, err := s.Get(ctx, tweetID)
	if err != nil {
		return err
	}
	if t.UserID != userID {
		return ErrNotTweetOwner
	}
	if _, err := s.tweets.Delete(ctx, tweetID); err != nil {
		return err
	}
	if _, err := s.store.DeleteByTweet(ctx, tweetID); err != nil {
		logger.Warn("delete timeline entries failed", zap.String("tweet_id", tweetID), zap.Error(err))
	}
	return nil
}
