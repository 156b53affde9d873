package model

import "time"

// Tweet 推文；ID 为 UUIDv7，按时间单调递增，可作为同一时刻的排序兜底
type Tweet struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);not null;index:idx_tweet_user_created,priority:1"`
	Content   string    `json:"content" gorm:"type:varchar(140);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_tweet_user_created,priority:2"`
}

func (Tweet) TableName() string { return "tweets" }
