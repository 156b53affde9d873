package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/newsfeed/internal/metrics"
	"github.com/d60-Lab/newsfeed/internal/repository"
	"github.com/d60-Lab/newsfeed/pkg/cache"
	"github.com/d60-Lab/newsfeed/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 20
)

// FollowOutcome 关注操作结果
type FollowOutcome int

const (
	FollowCreated FollowOutcome = iota + 1
	// FollowAlreadyExists 已关注，幂等成功
	FollowAlreadyExists
)

func (o FollowOutcome) String() string {
	switch o {
	case FollowCreated:
		return "created"
	case FollowAlreadyExists:
		return "already_following"
	default:
		return "unknown"
	}
}

// FollowerDirectory 关系链服务：关注/取关以及粉丝集合查询
//
// 粉丝集合走读穿缓存；任何变更在返回前使被关注者的缓存失效，
// 保证紧随其后的扇出能看到最新的粉丝集合。
type FollowerDirectory interface {
	Follow(ctx context.Context, followerID, followeeID string) (FollowOutcome, error)
	Unfollow(ctx context.Context, followerID, followeeID string) (int64, error)
	GetFollowers(ctx context.Context, userID string) ([]string, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	ListFollowers(ctx context.Context, userID string, page, pageSize int) ([]string, int64, error)
	ListFollowings(ctx context.Context, userID string, page, pageSize int) ([]string, int64, error)
	// PurgeUser 用户注销时删除其全部关系
	PurgeUser(ctx context.Context, userID string) error
}

type followerDirectory struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
	cache      *cache.Store
}

func NewFollowerDirectory(followRepo repository.FollowRepository, userRepo repository.UserRepository, store *cache.Store) FollowerDirectory {
	return &followerDirectory{followRepo: followRepo, userRepo: userRepo, cache: store}
}

func followersKey(userID string) string { return fmt.Sprintf("followers:index:%s", userID) }

func (d *followerDirectory) Follow(ctx context.Context, followerID, followeeID string) (FollowOutcome, error) {
	if followerID == followeeID {
		return 0, ErrFollowSelf
	}
	// 两端都必须存在：已注销用户的 token 在过期前仍然有效
	for _, id := range []string{followeeID, followerID} {
		ok, err := d.userRepo.Exists(ctx, id)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrUserNotFound
		}
	}

	created, err := d.followRepo.Create(ctx, followerID, followeeID)
	if err != nil {
		return 0, err
	}
	outcome := FollowCreated
	if !created {
		outcome = FollowAlreadyExists
	}
	// 即使是重复关注也失效一次：上一次调用可能在失效前失败
	if err := d.invalidate(ctx, followeeID); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (d *followerDirectory) Unfollow(ctx context.Context, followerID, followeeID string) (int64, error) {
	if followerID == followeeID {
		return 0, ErrFollowSelf
	}
	deleted, err := d.followRepo.Delete(ctx, followerID, followeeID)
	if err != nil {
		return 0, err
	}
	if err := d.invalidate(ctx, followeeID); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (d *followerDirectory) GetFollowers(ctx context.Context, userID string) ([]string, error) {
	ids, hit, err := cache.GetOrLoad(ctx, d.cache, followersKey(userID), func(ctx context.Context) ([]string, error) {
		return d.followRepo.ListFollowerIDs(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if d.cache.Enabled() {
		metrics.CacheResult("followers", hit)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (d *followerDirectory) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	if d.cache.Enabled() {
		var ids []string
		hit, err := d.cache.Get(ctx, followersKey(followeeID), &ids)
		if err == nil && hit {
			for _, id := range ids {
				if id == followerID {
					return true, nil
				}
			}
			return false, nil
		}
	}
	return d.followRepo.Exists(ctx, followerID, followeeID)
}

func (d *followerDirectory) ListFollowers(ctx context.Context, userID string, page, pageSize int) ([]string, int64, error) {
	offset, limit := pagination(page, pageSize)
	items, err := d.followRepo.ListFollowers(ctx, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := d.followRepo.CountFollowers(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FollowerID
	}
	return res, total, nil
}

func (d *followerDirectory) ListFollowings(ctx context.Context, userID string, page, pageSize int) ([]string, int64, error) {
	offset, limit := pagination(page, pageSize)
	items, err := d.followRepo.ListFollowings(ctx, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := d.followRepo.CountFollowings(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FolloweeID
	}
	return res, total, nil
}

func (d *followerDirectory) PurgeUser(ctx context.Context, userID string) error {
	affected, err := d.followRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	return d.invalidate(ctx, affected...)
}

func (d *followerDirectory) invalidate(ctx context.Context, userIDs ...string) error {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = followersKey(id)
	}
	if err := d.cache.Invalidate(ctx, keys...); err != nil {
		logger.Error("follower cache invalidation failed", zap.Strings("users", userIDs), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrCacheInvalidation, err)
	}
	return nil
}

func pagination(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return (page - 1) * pageSize, pageSize
}
