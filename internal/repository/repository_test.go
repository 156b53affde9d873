package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/pkg/database"
)

func setupDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		tb.Fatalf("open db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedUsers(tb testing.TB, db *gorm.DB, ids ...string) {
	tb.Helper()
	for _, id := range ids {
		u := model.User{ID: id, Username: id, Email: id + "@example.com", Password: "p"}
		require.NoError(tb, db.Create(&u).Error)
	}
}

func entry(owner, tweet string, at time.Time) model.NewsFeed {
	return model.NewsFeed{UserID: owner, TweetID: tweet, TweetCreatedAt: at, Score: model.ScoreOf(at)}
}

func tweetIDs(entries []model.NewsFeed) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.TweetID
	}
	return ids
}

func userID(i int) string { return fmt.Sprintf("u%04d", i) }

var bg = context.Background()
