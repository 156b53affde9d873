package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/newsfeed/internal/metrics"
	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/internal/repository"
	"github.com/d60-Lab/newsfeed/pkg/cache"
)

// UpdateProfileInput nil 字段不修改
type UpdateProfileInput struct {
	Nickname *string `json:"nickname" validate:"omitempty,max=200"`
	Avatar   *string `json:"avatar" validate:"omitempty,url,max=512"`
}

// ProfileService 用户资料，带版本化读穿缓存
// 失效由调用方显式触发（资料更新、账号注销），没有隐式监听
type ProfileService struct {
	profiles repository.ProfileRepository
	users    repository.UserRepository
	cache    *cache.Store
	validate *validator.Validate
}

func NewProfileService(profiles repository.ProfileRepository, users repository.UserRepository, store *cache.Store) *ProfileService {
	return &ProfileService{profiles: profiles, users: users, cache: store, validate: validator.New()}
}

func profileKey(userID string) string { return fmt.Sprintf("profile:%s", userID) }

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	p, hit, err := cache.GetOrLoad(ctx, s.cache, profileKey(userID), func(ctx context.Context) (*model.UserProfile, error) {
		ok, err := s.users.Exists(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrUserNotFound
		}
		return s.profiles.GetOrCreate(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if s.cache.Enabled() {
		metrics.CacheResult("profile", hit)
	}
	return p, nil
}

func (s *ProfileService) Update(ctx context.Context, userID string, in UpdateProfileInput) (*model.UserProfile, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	fields := map[string]any{}
	if in.Nickname != nil {
		fields["nickname"] = *in.Nickname
	}
	if in.Avatar != nil {
		fields["avatar"] = *in.Avatar
	}
	if len(fields) > 0 {
		if err := s.profiles.Update(ctx, userID, fields); err != nil {
			return nil, err
		}
		if err := s.Invalidate(ctx, userID); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, userID)
}

func (s *ProfileService) Invalidate(ctx context.Context, userID string) error {
	if err := s.cache.Invalidate(ctx, profileKey(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheInvalidation, err)
	}
	return nil
}
