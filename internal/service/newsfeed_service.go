package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/internal/repository"
)

// FeedItem 时间线项 + 推文内容
type FeedItem struct {
	TweetID   string      `json:"tweet_id"`
	Content   string      `json:"content"`
	Author    *FeedAuthor `json:"author"`
	CreatedAt time.Time   `json:"created_at"`
}

type FeedAuthor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// FeedPage 一页信息流；NextCursor 为空表示没有更多
type FeedPage struct {
	Items      []FeedItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

// NewsFeedService 读路径：按游标分页读取时间线并补全推文
type NewsFeedService struct {
	store           TimelineStore
	tweets          repository.TweetRepository
	users           repository.UserRepository
	defaultPageSize int
	maxPageSize     int
}

func NewNewsFeedService(store TimelineStore, tweets repository.TweetRepository, users repository.UserRepository, defaultPageSize, maxPageSize int) *NewsFeedService {
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	if maxPageSize < defaultPageSize {
		maxPageSize = defaultPageSize
	}
	return &NewsFeedService{store: store, tweets: tweets, users: users, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize}
}

// List 返回 userID 的一页首页信息流，最新在前
// 已删除推文（或作者已注销）对应的时间线项被跳过，但仍参与游标推进
func (s *NewsFeedService) List(ctx context.Context, userID string, limit int, cursor string) (*FeedPage, error) {
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	cur, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.GetRecent(ctx, userID, limit+1, cur)
	if err != nil {
		return nil, err
	}
	page := &FeedPage{Items: make([]FeedItem, 0, limit)}
	if len(entries) > limit {
		page.HasMore = true
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return page, nil
	}
	if page.HasMore {
		last := entries[len(entries)-1]
		page.NextCursor = EncodeCursor(model.FeedCursor{Score: last.Score, TweetID: last.TweetID})
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.TweetID
	}
	tweets, err := s.tweets.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Tweet, len(tweets))
	authorIDs := make([]string, 0, len(tweets))
	for _, t := range tweets {
		byID[t.ID] = t
		authorIDs = append(authorIDs, t.UserID)
	}
	users, err := s.users.GetByIDs(ctx, dedup(authorIDs))
	if err != nil {
		return nil, err
	}
	authors := make(map[string]*FeedAuthor, len(users))
	for _, u := range users {
		authors[u.ID] = &FeedAuthor{ID: u.ID, Username: u.Username}
	}

	for _, e := range entries {
		t, ok := byID[e.TweetID]
		if !ok {
			continue
		}
		author, ok := authors[t.UserID]
		if !ok {
			// 作者已注销
			continue
		}
		page.Items = append(page.Items, FeedItem{
			TweetID:   t.ID,
			Content:   t.Content,
			Author:    author,
			CreatedAt: t.CreatedAt,
		})
	}
	return page, nil
}

// EncodeCursor 游标编码为 base64url("score:tweet_id")
func EncodeCursor(c model.FeedCursor) string {
	raw := strconv.FormatInt(c.Score, 10) + ":" + c.TweetID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor 空串返回 nil（第一页）
func DecodeCursor(s string) (*model.FeedCursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	scorePart, tweetID, ok := strings.Cut(string(raw), ":")
	if !ok || tweetID == "" {
		return nil, ErrInvalidCursor
	}
	score, err := strconv.ParseInt(scorePart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &model.FeedCursor{Score: score, TweetID: tweetID}, nil
}

func dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
