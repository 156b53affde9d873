package model

import "time"

// FanoutTask 扇出任务外发盒（async 模式下与推文同事务写入）
type FanoutTask struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)"`
	TweetID        string     `gorm:"type:varchar(36);uniqueIndex"`
	AuthorID       string     `gorm:"type:varchar(36);index:idx_fanout_author"`
	TweetCreatedAt time.Time  `gorm:"not null"`
	Status         string     `gorm:"type:varchar(16);index:idx_fanout_claim,priority:1"` // pending, processing, done, dead
	Attempts       int        `gorm:"not null;default:0"`
	AvailableAt    time.Time  `gorm:"index:idx_fanout_claim,priority:2"`
	ClaimedAt      *time.Time
	ProcessedAt    *time.Time
	FanoutCount    int64
	LastError      string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (FanoutTask) TableName() string { return "fanout_tasks" }

const (
	FanoutTaskPending    = "pending"
	FanoutTaskProcessing = "processing"
	FanoutTaskDone       = "done"
	FanoutTaskDead       = "dead"
)
