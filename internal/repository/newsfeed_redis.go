package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/newsfeed/internal/model"
)

// RedisTimelineStore 基于 Redis 有序集合的时间线存储
// timeline:{user} ZSET member=tweet_id score=created_at(us)
// timeline:owners:{tweet} SET 记录该推文被扇出到的用户，删除推文时反查
type RedisTimelineStore struct {
	client *redis.Client
	maxLen int64         // 每条时间线保留的最大条数，<=0 不截断
	ttl    time.Duration // 时间线过期时间，<=0 不过期
}

func NewRedisTimelineStore(client *redis.Client, maxLen int64, ttl time.Duration) *RedisTimelineStore {
	return &RedisTimelineStore{client: client, maxLen: maxLen, ttl: ttl}
}

func timelineKey(userID string) string { return fmt.Sprintf("timeline:%s", userID) }

func ownersKey(tweetID string) string { return fmt.Sprintf("timeline:owners:%s", tweetID) }

// AppendBatch MULTI/EXEC 内写入全部时间线项；ZADD NX 保证重试不重复
func (s *RedisTimelineStore) AppendBatch(ctx context.Context, entries []model.NewsFeed) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	cmds := make([]*redis.IntCmd, 0, len(entries))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			score := e.Score
			if score == 0 {
				score = model.ScoreOf(e.TweetCreatedAt)
			}
			key := timelineKey(e.UserID)
			cmds = append(cmds, pipe.ZAddNX(ctx, key, redis.Z{Score: float64(score), Member: e.TweetID}))
			if s.maxLen > 0 {
				pipe.ZRemRangeByRank(ctx, key, 0, -(s.maxLen + 1))
			}
			pipe.SAdd(ctx, ownersKey(e.TweetID), e.UserID)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
				pipe.Expire(ctx, ownersKey(e.TweetID), s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	var written int64
	for _, c := range cmds {
		written += c.Val()
	}
	return written, nil
}

func (s *RedisTimelineStore) GetRecent(ctx context.Context, userID string, limit int, cursor *model.FeedCursor) ([]model.NewsFeed, error) {
	if limit <= 0 {
		return []model.NewsFeed{}, nil
	}
	res := make([]model.NewsFeed, 0, limit)
	maxScore := "+inf"
	if cursor != nil {
		maxScore = strconv.FormatInt(cursor.Score, 10)
	}

	key := timelineKey(userID)
	fetch := int64(limit + 1)
	var offset int64
	for len(res) < limit {
		zs, err := s.client.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Max:    maxScore,
			Min:    "-inf",
			Offset: offset,
			Count:  fetch,
		}).Result()
		if err != nil {
			return nil, err
		}
		for _, z := range zs {
			tweetID, ok := z.Member.(string)
			if !ok {
				continue
			}
			score := int64(z.Score)
			e := model.NewsFeed{
				UserID:         userID,
				TweetID:        tweetID,
				Score:          score,
				TweetCreatedAt: time.UnixMicro(score).UTC(),
			}
			// 同分值的项里跳过游标及其之前的
			if cursor != nil && !cursor.After(e) {
				continue
			}
			res = append(res, e)
			if len(res) == limit {
				break
			}
		}
		if int64(len(zs)) < fetch {
			break
		}
		offset += fetch
	}
	return res, nil
}

func (s *RedisTimelineStore) DeleteByTweet(ctx context.Context, tweetID string) (int64, error) {
	owners, err := s.client.SMembers(ctx, ownersKey(tweetID)).Result()
	if err != nil {
		return 0, err
	}
	cmds := make([]*redis.IntCmd, 0, len(owners))
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, uid := range owners {
			cmds = append(cmds, pipe.ZRem(ctx, timelineKey(uid), tweetID))
		}
		pipe.Del(ctx, ownersKey(tweetID))
		return nil
	})
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, c := range cmds {
		removed += c.Val()
	}
	return removed, nil
}

func (s *RedisTimelineStore) Count(ctx context.Context, userID string) (int64, error) {
	return s.client.ZCard(ctx, timelineKey(userID)).Result()
}
