package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/newsfeed/pkg/auth"
	"github.com/d60-Lab/newsfeed/pkg/response"
)

const userIDKey = "user_id"

// Auth 校验 Bearer 令牌，把用户 ID 写入上下文
func Auth(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.Unauthorized(c, "authorization token is not provided")
			return
		}
		userID, err := tokens.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// CurrentUserID 返回 Auth 写入的用户 ID
func CurrentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
