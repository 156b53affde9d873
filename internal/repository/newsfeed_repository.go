package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/newsfeed/internal/model"
)

// NewsFeedRepository 基于关系库的时间线存储
type NewsFeedRepository interface {
	// AppendBatch 在一个事务内写入整批时间线项，已存在的 (user, tweet) 跳过；返回新写入条数
	AppendBatch(ctx context.Context, entries []model.NewsFeed) (int64, error)
	// GetRecent 按 (score DESC, tweet_id DESC) 返回游标之后的最多 limit 条
	GetRecent(ctx context.Context, userID string, limit int, cursor *model.FeedCursor) ([]model.NewsFeed, error)
	DeleteByTweet(ctx context.Context, tweetID string) (int64, error)
	Count(ctx context.Context, userID string) (int64, error)
}

type newsFeedRepository struct {
	db        *gorm.DB
	batchSize int
}

func NewNewsFeedRepository(db *gorm.DB, batchSize int) NewsFeedRepository {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &newsFeedRepository{db: db, batchSize: batchSize}
}

func (r *newsFeedRepository) AppendBatch(ctx context.Context, entries []model.NewsFeed) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	rows := make([]model.NewsFeed, len(entries))
	copy(rows, entries)
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.New().String()
		}
		if rows[i].Score == 0 {
			rows[i].Score = model.ScoreOf(rows[i].TweetCreatedAt)
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
	}

	var written int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(rows); start += r.batchSize {
			chunk := rows[start:min(start+r.batchSize, len(rows))]
			// upsert ignore duplicates
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&chunk)
			if res.Error != nil {
				return res.Error
			}
			written += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (r *newsFeedRepository) GetRecent(ctx context.Context, userID string, limit int, cursor *model.FeedCursor) ([]model.NewsFeed, error) {
	if limit <= 0 {
		return []model.NewsFeed{}, nil
	}
	res := make([]model.NewsFeed, 0, limit)
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		q = q.Where("(score < ? OR (score = ? AND tweet_id < ?))", cursor.Score, cursor.Score, cursor.TweetID)
	}
	err := q.Order("score DESC").Order("tweet_id DESC").Limit(limit).Find(&res).Error
	return res, err
}

func (r *newsFeedRepository) DeleteByTweet(ctx context.Context, tweetID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("tweet_id = ?", tweetID).Delete(&model.NewsFeed{})
	return res.RowsAffected, res.Error
}

func (r *newsFeedRepository) Count(ctx context.Context, userID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.NewsFeed{}).Where("user_id = ?", userID).Count(&cnt).Error
	return cnt, err
}
