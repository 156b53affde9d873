package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/d60-Lab/newsfeed/internal/metrics"
	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/internal/repository"
	"github.com/d60-Lab/newsfeed/pkg/logger"
)

// Fanouter 执行单次扇出
type Fanouter interface {
	Fanout(ctx context.Context, req FanoutRequest) (*FanoutResult, error)
}

// FanoutWorkerOptions async 模式 worker 参数
type FanoutWorkerOptions struct {
	Workers      int
	ClaimLimit   int
	PollInterval time.Duration
	Lease        time.Duration
	MaxAttempts  int
	TaskTimeout  time.Duration
}

// FanoutWorker 从 outbox 领取扇出任务并执行
// 可重试失败按指数退避放回 pending；不可重试或超过最大次数的进入 dead
type FanoutWorker struct {
	tasks  repository.FanoutTaskRepository
	engine Fanouter
	opts   FanoutWorkerOptions
	now    func() time.Time
}

func NewFanoutWorker(tasks repository.FanoutTaskRepository, engine Fanouter, opts FanoutWorkerOptions) *FanoutWorker {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ClaimLimit <= 0 {
		opts.ClaimLimit = 64
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.Lease <= 0 {
		opts.Lease = time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}
	return &FanoutWorker{tasks: tasks, engine: engine, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// Start 启动若干 worker 轮询处理 outbox；返回停止函数（等待在途任务结束）
func (w *FanoutWorker) Start() func(context.Context) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(stop)
		}()
	}
	return func(ctx context.Context) error {
		close(stop)
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *FanoutWorker) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := w.RunOnce(context.Background()); err != nil {
				logger.Warn("fanout worker claim failed", zap.Error(err))
			}
		}
	}
}

// RunOnce 领取一批任务并逐个扇出，返回处理条数
func (w *FanoutWorker) RunOnce(ctx context.Context) (int, error) {
	batch, err := w.tasks.Claim(ctx, w.opts.ClaimLimit, w.now(), w.opts.Lease)
	if err != nil {
		return 0, err
	}
	for _, t := range batch {
		w.process(ctx, t)
	}
	return len(batch), nil
}

func (w *FanoutWorker) process(ctx context.Context, t model.FanoutTask) {
	taskCtx, cancel := context.WithTimeout(ctx, w.opts.TaskTimeout)
	defer cancel()

	res, err := w.engine.Fanout(taskCtx, FanoutRequest{
		TweetID:        t.TweetID,
		AuthorID:       t.AuthorID,
		TweetCreatedAt: t.TweetCreatedAt,
	})
	now := w.now()
	if err == nil {
		if mErr := w.tasks.MarkDone(ctx, t.ID, int64(res.Recipients), now); mErr != nil {
			// 租约过期后会被重新领取，再次扇出是幂等的
			logger.Warn("mark fanout task done failed", zap.String("task_id", t.ID), zap.Error(mErr))
		}
		if !t.CreatedAt.IsZero() {
			metrics.FanoutTaskLag.Observe(now.Sub(t.CreatedAt).Seconds())
		}
		return
	}

	attempts := t.Attempts + 1
	if !IsRetryable(err) || attempts >= w.opts.MaxAttempts {
		logger.Error("fanout task moved to dead",
			zap.String("task_id", t.ID), zap.String("tweet_id", t.TweetID),
			zap.Int("attempts", attempts), zap.Error(err))
		metrics.FanoutTasksDead.Inc()
		if mErr := w.tasks.MarkDead(ctx, t.ID, attempts, err.Error(), now); mErr != nil {
			logger.Warn("mark fanout task dead failed", zap.String("task_id", t.ID), zap.Error(mErr))
		}
		return
	}

	next := now.Add(retryDelay(attempts))
	logger.Warn("fanout task rescheduled",
		zap.String("task_id", t.ID), zap.Int("attempts", attempts), zap.Time("available_at", next), zap.Error(err))
	if mErr := w.tasks.MarkRetry(ctx, t.ID, attempts, next, err.Error()); mErr != nil {
		logger.Warn("mark fanout task retry failed", zap.String("task_id", t.ID), zap.Error(mErr))
	}
}

// retryDelay 第 attempt 次失败后的等待时间（带抖动的指数退避）
func retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	d := b.InitialInterval
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
