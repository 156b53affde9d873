package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/newsfeed/internal/service"
	"github.com/d60-Lab/newsfeed/pkg/response"
)

// Handler HTTP 处理器集合
type Handler struct {
	directory service.FollowerDirectory
	tweets    *service.TweetService
	feeds     *service.NewsFeedService
	profiles  *service.ProfileService
	accounts  *service.AccountService
}

func New(directory service.FollowerDirectory, tweets *service.TweetService, feeds *service.NewsFeedService,
	profiles *service.ProfileService, accounts *service.AccountService) *Handler {
	return &Handler{directory: directory, tweets: tweets, feeds: feeds, profiles: profiles, accounts: accounts}
}

// handleError 服务层错误 -> HTTP 状态码
// 校验类 4xx；可重试 503，客户端可原样重试；其余 500
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrFollowSelf),
		errors.Is(err, service.ErrInvalidCursor):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrTweetNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrNotTweetOwner):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrUsernameTaken):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredential):
		response.Unauthorized(c, err.Error())
	case service.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(c, err)
	default:
		response.InternalError(c, err)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
