package model

import "time"

// NewsFeed 时间线项：TweetID 出现在 UserID 的首页信息流中
type NewsFeed struct {
	ID      string `gorm:"primaryKey;type:varchar(36)"`
	UserID  string `gorm:"type:varchar(36);not null;uniqueIndex:ux_newsfeed_user_tweet,priority:1;index:idx_newsfeed_user_score,priority:1"`
	TweetID string `gorm:"type:varchar(36);not null;uniqueIndex:ux_newsfeed_user_tweet,priority:2;index:idx_newsfeed_user_score,priority:3;index:idx_newsfeed_tweet"`
	// 复合唯一键，避免重复 (user, tweet)，扇出重试据此幂等
	// Score = TweetCreatedAt.UnixMicro()，排序键为 (score DESC, tweet_id DESC)
	Score          int64     `gorm:"not null;index:idx_newsfeed_user_score,priority:2"`
	TweetCreatedAt time.Time `gorm:"not null"`
	CreatedAt      time.Time
}

func (NewsFeed) TableName() string { return "newsfeeds" }

// ScoreOf 返回时间线排序分值
func ScoreOf(t time.Time) int64 { return t.UnixMicro() }

// FeedCursor 指向上一页最后一条，下一页严格排在它之后
type FeedCursor struct {
	Score   int64
	TweetID string
}

// After 判断 e 是否严格排在游标之后（更旧）
func (c FeedCursor) After(e NewsFeed) bool {
	if e.Score != c.Score {
		return e.Score < c.Score
	}
	return e.TweetID < c.TweetID
}
