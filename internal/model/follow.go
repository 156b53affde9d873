package model

import (
	"time"
)

// Follow 关注关系（A 关注 B：FollowerID=A, FolloweeID=B）
type Follow struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	FollowerID string `gorm:"type:varchar(36);not null;index:idx_follow_pair,unique,priority:1"`
	FolloweeID string `gorm:"type:varchar(36);not null;index:idx_follow_pair,unique,priority:2;index:idx_follow_followee"`
	// 复合唯一键，避免重复关注
	// idx_follow_pair = (follower_id, followee_id)
	// idx_follow_followee 支撑 "谁关注了 B" 的扇出查询
	CreatedAt time.Time
}

func (Follow) TableName() string { return "follows" }
