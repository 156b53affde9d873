package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/newsfeed/internal/model"
)

type TweetRepository interface {
	// Create 写入推文；task 非空时在同一事务内写入扇出任务（transactional outbox）
	Create(ctx context.Context, tweet *model.Tweet, task *model.FanoutTask) error
	GetByID(ctx context.Context, id string) (*model.Tweet, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.Tweet, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Tweet, error)
	Delete(ctx context.Context, id string) (int64, error)
}

type tweetRepository struct{ db *gorm.DB }

func NewTweetRepository(db *gorm.DB) TweetRepository { return &tweetRepository{db: db} }

func (r *tweetRepository) Create(ctx context.Context, tweet *model.Tweet, task *model.FanoutTask) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tweet).Error; err != nil {
			return err
		}
		if task == nil {
			return nil
		}
		return tx.Create(task).Error
	})
}

func (r *tweetRepository) GetByID(ctx context.Context, id string) (*model.Tweet, error) {
	var t model.Tweet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *tweetRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.Tweet, error) {
	var res []*model.Tweet
	if len(ids) == 0 {
		return res, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *tweetRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Tweet, error) {
	var res []*model.Tweet
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *tweetRepository) Delete(ctx context.Context, id string) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Tweet{})
	return res.RowsAffected, res.Error
}
