package model

import "time"

// UserProfile 用户资料，与 User 一对一
type UserProfile struct {
	ID        string    `json:"-" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	Nickname  string    `json:"nickname" gorm:"type:varchar(200)"`
	Avatar    string    `json:"avatar" gorm:"type:varchar(512)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }
