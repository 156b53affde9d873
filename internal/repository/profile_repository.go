package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/newsfeed/internal/model"
)

type ProfileRepository interface {
	// GetOrCreate 不存在时创建空资料
	GetOrCreate(ctx context.Context, userID string) (*model.UserProfile, error)
	Update(ctx context.Context, userID string, fields map[string]any) error
	DeleteByUser(ctx context.Context, userID string) error
}

type profileRepository struct{ db *gorm.DB }

func NewProfileRepository(db *gorm.DB) ProfileRepository { return &profileRepository{db: db} }

func (r *profileRepository) GetOrCreate(ctx context.Context, userID string) (*model.UserProfile, error) {
	p := &model.UserProfile{ID: uuid.New().String(), UserID: userID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error; err != nil {
		return nil, err
	}
	var out model.UserProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *profileRepository) Update(ctx context.Context, userID string, fields map[string]any) error {
	if _, err := r.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&model.UserProfile{}).Where("user_id = ?", userID).Updates(fields).Error
}

func (r *profileRepository) DeleteByUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.UserProfile{}).Error
}
