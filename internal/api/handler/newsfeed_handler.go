package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/newsfeed/internal/api/middleware"
	"github.com/d60-Lab/newsfeed/pkg/response"
)

// ListNewsFeed 首页信息流
// @Summary 首页信息流（游标分页）
// @Tags 信息流
// @Produce json
// @Security BearerAuth
// @Param limit query int false "条数"
// @Param cursor query string false "上一页返回的 next_cursor"
// @Success 200 {object} response.Response{data=service.FeedPage}
// @Failure 400 {object} response.Response
// @Router /newsfeeds [get]
func (h *Handler) ListNewsFeed(c *gin.Context) {
	page, err := h.feeds.List(c.Request.Context(), middleware.CurrentUserID(c), queryInt(c, "limit", 0), c.Query("cursor"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, page)
}
