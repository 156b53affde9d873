package service

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/newsfeed/internal/model"
)

func itemIDs(p *FeedPage) []string {
	ids := make([]string, len(p.Items))
	for i, it := range p.Items {
		ids[i] = it.TweetID
	}
	return ids
}

func TestNewsFeedList_CursorPagination(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "bob")
	e.follow(t, "bob", "alice")
	for i := 1; i <= 5; i++ {
		e.post(t, "alice", fmt.Sprintf("T%d", i), at(i*100))
	}
	svc := NewNewsFeedService(e.timeline, e.tweets, e.users, 2, 10)

	p1, err := svc.List(bg, "bob", 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"T5", "T4"}, itemIDs(p1))
	assert.True(t, p1.HasMore)
	require.NotEmpty(t, p1.NextCursor)
	assert.Equal(t, "alice", p1.Items[0].Author.Username)

	// 翻页期间插入更新的推文，不影响后续页
	e.post(t, "alice", "T6", at(600))

	p2, err := svc.List(bg, "bob", 2, p1.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"T3", "T2"}, itemIDs(p2))

	p3, err := svc.List(bg, "bob", 2, p2.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, itemIDs(p3))
	assert.False(t, p3.HasMore)
	assert.Empty(t, p3.NextCursor)
}

func TestNewsFeedList_LimitClamped(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice")
	for i := 1; i <= 5; i++ {
		e.post(t, "alice", fmt.Sprintf("T%d", i), at(i))
	}
	svc := NewNewsFeedService(e.timeline, e.tweets, e.users, 2, 3)

	p, err := svc.List(bg, "alice", 50, "")
	require.NoError(t, err)
	assert.Len(t, p.Items, 3)
	assert.True(t, p.HasMore)
}

func TestNewsFeedList_EmptyTimeline(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice")
	svc := NewNewsFeedService(e.timeline, e.tweets, e.users, 20, 100)

	p, err := svc.List(bg, "alice", 10, "")
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.NotNil(t, p.Items)
	assert.False(t, p.HasMore)
}

func TestNewsFeedList_SkipsDanglingEntries(t *testing.T) {
	e := newEnv(t)
	e.seedUsers(t, "alice", "carol", "bob")
	e.follow(t, "bob", "alice")
	e.follow(t, "bob", "carol")
	e.post(t, "alice", "T1", at(100))
	e.post(t, "carol", "T2", at(200))
	e.post(t, "alice", "T3", at(300))

	// 推文行已删、时间线项仍在
	_, err := e.tweets.Delete(bg, "T3")
	require.NoError(t, err)
	// 作者已注销
	require.NoError(t, e.users.Delete(bg, "carol"))

	svc := NewNewsFeedService(e.timeline, e.tweets, e.users, 20, 100)
	p, err := svc.List(bg, "bob", 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, itemIDs(p))
}

func TestNewsFeedList_InvalidCursor(t *testing.T) {
	e := newEnv(t)
	svc := NewNewsFeedService(e.timeline, e.tweets, e.users, 20, 100)

	for _, c := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("abc:T1")),
		base64.RawURLEncoding.EncodeToString([]byte("123:")),
	} {
		_, err := svc.List(bg, "alice", 10, c)
		assert.ErrorIs(t, err, ErrInvalidCursor, c)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c := model.FeedCursor{Score: model.ScoreOf(at(42)), TweetID: "0190a5b2-7c3e-7def-8123-456789abcdef"}
	got, err := DecodeCursor(EncodeCursor(c))
	require.NoError(t, err)
	assert.Equal(t, c, *got)

	none, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, none)
}
