package service

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/newsfeed/internal/metrics"
	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/pkg/logger"
)

// TimelineStore 时间线存储（关系库或 Redis 实现）
type TimelineStore interface {
	// AppendBatch 整批原子写入，重复的 (user, tweet) 跳过
	AppendBatch(ctx context.Context, entries []model.NewsFeed) (int64, error)
	GetRecent(ctx context.Context, userID string, limit int, cursor *model.FeedCursor) ([]model.NewsFeed, error)
	DeleteByTweet(ctx context.Context, tweetID string) (int64, error)
}

// FollowerSource 扇出所需的粉丝集合来源
type FollowerSource interface {
	GetFollowers(ctx context.Context, userID string) ([]string, error)
}

// UserChecker 校验作者是否存在
type UserChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// FanoutRequest 一次扇出的输入
type FanoutRequest struct {
	TweetID        string
	AuthorID       string
	TweetCreatedAt time.Time
}

// FanoutResult Recipients 为收件人数（含作者），Written 为本次新写入条数（重试时可能小于 Recipients）
type FanoutResult struct {
	Recipients int
	Written    int64
}

// FanoutEngine 写扩散：把新推文写入作者本人及全部粉丝的时间线
//
// 拉粉丝与批量写入顺序执行，期间不持有任何进程内锁。
// 拉粉丝失败或超时不会产生任何写入；写入失败可整体重试（AppendBatch 幂等）。
type FanoutEngine struct {
	followers    FollowerSource
	users        UserChecker
	store        TimelineStore
	fetchTimeout time.Duration
	writeTimeout time.Duration
	tracer       trace.Tracer
}

func NewFanoutEngine(followers FollowerSource, users UserChecker, store TimelineStore, fetchTimeout, writeTimeout time.Duration) *FanoutEngine {
	return &FanoutEngine{
		followers:    followers,
		users:        users,
		store:        store,
		fetchTimeout: fetchTimeout,
		writeTimeout: writeTimeout,
		tracer:       otel.Tracer("github.com/d60-Lab/newsfeed/internal/service/fanout"),
	}
}

// Fanout 同步完成扇出；仅在整批写入确认后返回成功
func (e *FanoutEngine) Fanout(ctx context.Context, req FanoutRequest) (res *FanoutResult, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "fanout", trace.WithAttributes(
		attribute.String("tweet.id", req.TweetID),
		attribute.String("author.id", req.AuthorID),
	))
	defer func() {
		metrics.FanoutDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if IsRetryable(err) {
				metrics.FanoutTotal.WithLabelValues("retryable").Inc()
			} else {
				metrics.FanoutTotal.WithLabelValues("fatal").Inc()
			}
		} else {
			metrics.FanoutTotal.WithLabelValues("completed").Inc()
		}
		span.End()
	}()

	if req.TweetID == "" || req.AuthorID == "" {
		return nil, &FanoutError{TweetID: req.TweetID, State: FanoutPending, Err: ErrInvalidInput}
	}

	// PENDING: 校验作者并拉取粉丝集合
	followers, err := e.fetchFollowers(ctx, req)
	if err != nil {
		return nil, err
	}
	span.AddEvent(FanoutFollowersFetched.String(), trace.WithAttributes(attribute.Int("followers", len(followers))))

	// FOLLOWERS_FETCHED: 组装收件人（作者 ∪ 粉丝，去重）
	entries := buildEntries(req, followers)
	metrics.FanoutRecipients.Observe(float64(len(entries)))

	// BATCH_SUBMITTED: 一次 AppendBatch
	writeCtx, cancel := withOptionalTimeout(ctx, e.writeTimeout)
	defer cancel()
	written, err := e.store.AppendBatch(writeCtx, entries)
	if err != nil {
		logger.Warn("fanout batch write failed",
			zap.String("tweet_id", req.TweetID), zap.Int("recipients", len(entries)), zap.Error(err))
		return nil, &FanoutError{TweetID: req.TweetID, State: FanoutBatchSubmitted, Retryable: true, Err: err}
	}

	logger.Debug("fanout completed",
		zap.String("tweet_id", req.TweetID),
		zap.String("author_id", req.AuthorID),
		zap.Int("recipients", len(entries)),
		zap.Int64("written", written))
	return &FanoutResult{Recipients: len(entries), Written: written}, nil
}

func (e *FanoutEngine) fetchFollowers(ctx context.Context, req FanoutRequest) ([]string, error) {
	fetchCtx, cancel := withOptionalTimeout(ctx, e.fetchTimeout)
	defer cancel()

	exists, err := e.users.Exists(fetchCtx, req.AuthorID)
	if err != nil {
		return nil, &FanoutError{TweetID: req.TweetID, State: FanoutPending, Retryable: true, Err: err}
	}
	if !exists {
		ferr := &FanoutError{TweetID: req.TweetID, State: FanoutPending, Err: ErrAuthorNotFound}
		logger.Error("invariant violation: fanout invoked for a missing author",
			zap.String("tweet_id", req.TweetID), zap.String("author_id", req.AuthorID))
		sentry.CaptureException(ferr)
		return nil, ferr
	}

	followers, err := e.followers.GetFollowers(fetchCtx, req.AuthorID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("fanout follower fetch timed out", zap.String("tweet_id", req.TweetID))
		}
		return nil, &FanoutError{TweetID: req.TweetID, State: FanoutPending, Retryable: true, Err: err}
	}
	return followers, nil
}

// buildEntries 作者排第一位；作者自己不可能关注自己，这里仍然去重
func buildEntries(req FanoutRequest, followers []string) []model.NewsFeed {
	createdAt := req.TweetCreatedAt.UTC()
	score := model.ScoreOf(createdAt)
	seen := make(map[string]struct{}, len(followers)+1)
	entries := make([]model.NewsFeed, 0, len(followers)+1)
	add := func(uid string) {
		if uid == "" {
			return
		}
		if _, ok := seen[uid]; ok {
			return
		}
		seen[uid] = struct{}{}
		entries = append(entries, model.NewsFeed{
			UserID:         uid,
			TweetID:        req.TweetID,
			Score:          score,
			TweetCreatedAt: createdAt,
		})
	}
	add(req.AuthorID)
	for _, f := range followers {
		add(f)
	}
	return entries
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
