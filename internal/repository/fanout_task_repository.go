package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/newsfeed/internal/model"
)

type FanoutTaskRepository interface {
	// Claim 领取一批可执行任务并标记为 processing
	// 可执行：pending 且 available_at 已到；或 processing 但租约已过期（worker 崩溃）
	Claim(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]model.FanoutTask, error)
	MarkDone(ctx context.Context, id string, fanoutCount int64, now time.Time) error
	// MarkRetry 放回 pending，在 availableAt 之后可再次领取
	MarkRetry(ctx context.Context, id string, attempts int, availableAt time.Time, lastErr string) error
	MarkDead(ctx context.Context, id string, attempts int, lastErr string, now time.Time) error
	GetByTweetID(ctx context.Context, tweetID string) (*model.FanoutTask, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type fanoutTaskRepository struct{ db *gorm.DB }

func NewFanoutTaskRepository(db *gorm.DB) FanoutTaskRepository { return &fanoutTaskRepository{db: db} }

func (r *fanoutTaskRepository) Claim(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]model.FanoutTask, error) {
	var batch []model.FanoutTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SELECT ... FOR UPDATE SKIP LOCKED（sqlite 方言会忽略锁子句）
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("(status = ? AND available_at <= ?) OR (status = ? AND claimed_at < ?)",
				model.FanoutTaskPending, now, model.FanoutTaskProcessing, now.Add(-lease)).
			Order("available_at").
			Limit(limit).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i := range batch {
			ids[i] = batch[i].ID
			batch[i].Status = model.FanoutTaskProcessing
			batch[i].ClaimedAt = &now
		}
		return tx.Model(&model.FanoutTask{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": model.FanoutTaskProcessing, "claimed_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *fanoutTaskRepository) MarkDone(ctx context.Context, id string, fanoutCount int64, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.FanoutTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.FanoutTaskDone,
			"processed_at": now,
			"fanout_count": fanoutCount,
			"last_error":   "",
		}).Error
}

func (r *fanoutTaskRepository) MarkRetry(ctx context.Context, id string, attempts int, availableAt time.Time, lastErr string) error {
	return r.db.WithContext(ctx).Model(&model.FanoutTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.FanoutTaskPending,
			"attempts":     attempts,
			"available_at": availableAt,
			"claimed_at":   nil,
			"last_error":   lastErr,
		}).Error
}

func (r *fanoutTaskRepository) MarkDead(ctx context.Context, id string, attempts int, lastErr string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&model.FanoutTask{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       model.FanoutTaskDead,
			"attempts":     attempts,
			"processed_at": now,
			"last_error":   lastErr,
		}).Error
}

func (r *fanoutTaskRepository) GetByTweetID(ctx context.Context, tweetID string) (*model.FanoutTask, error) {
	var t model.FanoutTask
	if err := r.db.WithContext(ctx).Where("tweet_id = ?", tweetID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *fanoutTaskRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.FanoutTask{}).Where("status = ?", status).Count(&cnt).Error
	return cnt, err
}
