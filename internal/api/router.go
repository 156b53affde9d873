package api

import (
	"context"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/newsfeed/config"
	_ "github.com/d60-Lab/newsfeed/docs"
	"github.com/d60-Lab/newsfeed/internal/api/handler"
	"github.com/d60-Lab/newsfeed/internal/api/middleware"
	"github.com/d60-Lab/newsfeed/pkg/auth"
	"github.com/d60-Lab/newsfeed/pkg/response"
)

// HealthCheck 依赖探活（数据库、Redis）
type HealthCheck func(ctx context.Context) error

// NewRouter 注册全部路由
func NewRouter(cfg *config.Config, h *handler.Handler, tokens *auth.TokenIssuer, health HealthCheck) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.Logger())
	if sentry.CurrentHub().Client() != nil {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				response.Error(c, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		response.Success(c, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authed := middleware.Auth(tokens)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.TweetsPerSecond, cfg.RateLimit.Burst)

	v1 := r.Group("/api/v1")
	{
		accounts := v1.Group("/accounts")
		accounts.POST("/signup", h.Signup)
		accounts.POST("/login", h.Login)
		accounts.DELETE("/me", authed, h.DeleteAccount)

		friendships := v1.Group("/friendships")
		friendships.POST("/:user_id/follow", authed, h.Follow)
		friendships.POST("/:user_id/unfollow", authed, h.Unfollow)
		friendships.GET("/:user_id/followers", h.ListFollowers)
		friendships.GET("/:user_id/followings", h.ListFollowings)

		tweets := v1.Group("/tweets")
		tweets.POST("", authed, limiter.Middleware(), h.CreateTweet)
		tweets.GET("", h.ListTweets)
		tweets.DELETE("/:id", authed, h.DeleteTweet)

		v1.GET("/newsfeeds", authed, h.ListNewsFeed)

		profiles := v1.Group("/profiles")
		profiles.GET("/:user_id", h.GetProfile)
		profiles.PUT("/me", authed, h.UpdateProfile)
	}
	return r
}
