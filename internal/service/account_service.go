package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/internal/repository"
	"github.com/d60-Lab/newsfeed/pkg/auth"
	"github.com/d60-Lab/newsfeed/pkg/logger"
)

type SignupInput struct {
	Username string `json:"username" validate:"required,alphanum,min=3,max=64"`
	Email    string `json:"email" validate:"omitempty,email,max=128"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

type AccountService struct {
	users     repository.UserRepository
	profiles  repository.ProfileRepository
	directory FollowerDirectory
	profile   *ProfileService
	tokens    *auth.TokenIssuer
	validate  *validator.Validate
}

func NewAccountService(users repository.UserRepository, profiles repository.ProfileRepository, directory FollowerDirectory, profile *ProfileService, tokens *auth.TokenIssuer) *AccountService {
	return &AccountService{
		users:     users,
		profiles:  profiles,
		directory: directory,
		profile:   profile,
		tokens:    tokens,
		validate:  validator.New(),
	}
}

func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	_, err := s.users.GetByUsername(ctx, in.Username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:       uuid.New().String(),
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashed),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AccountService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}
	token, exp, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// Delete 注销账号：先清关系链（失效相关粉丝缓存），再删资料和用户
// 已写入他人时间线的推文由读路径按作者不存在跳过
func (s *AccountService) Delete(ctx context.Context, userID string) error {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	if err := s.directory.PurgeUser(ctx, userID); err != nil {
		return err
	}
	if err := s.profiles.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	if err := s.profile.Invalidate(ctx, userID); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return err
	}
	logger.Info("account deleted", zap.String("user_id", userID))
	return nil
}
