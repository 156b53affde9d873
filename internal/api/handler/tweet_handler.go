package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/newsfeed/internal/api/middleware"
	"github.com/d60-Lab/newsfeed/internal/model"
	"github.com/d60-Lab/newsfeed/internal/service"
	"github.com/d60-Lab/newsfeed/pkg/response"
)

type createTweetRequest struct {
	Content string `json:"content" binding:"required"`
}

type createTweetResult struct {
	Tweet        *model.Tweet         `json:"tweet"`
	FanoutStatus service.FanoutStatus `json:"fanout_status"`
}

// CreateTweet 发推
// @Summary 发推并扇出到粉丝时间线
// @Description sync 模式返回 201 且 fanout_status=completed；async 模式返回 202 且 fanout_status=enqueued。
// @Description 扇出可重试失败返回 503，此时推文已保存。
// @Tags 推文
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createTweetRequest true "推文内容(6-140字)"
// @Success 201 {object} response.Response{data=createTweetResult}
// @Success 202 {object} response.Response{data=createTweetResult}
// @Failure 400 {object} response.Response
// @Failure 429 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /tweets [post]
func (h *Handler) CreateTweet(c *gin.Context) {
	var req createTweetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	tweet, status, err := h.tweets.Create(c.Request.Context(), middleware.CurrentUserID(c), req.Content)
	if err != nil {
		handleError(c, err)
		return
	}
	res := createTweetResult{Tweet: tweet, FanoutStatus: status}
	if status == service.FanoutStatusEnqueued {
		response.Accepted(c, res)
		return
	}
	response.Created(c, res)
}

// ListTweets 查询某用户发过的推文
// @Summary 用户推文列表
// @Tags 推文
// @Param user_id query string true "用户ID"
// @Param limit query int false "条数" default(20)
// @Success 200 {object} response.Response{data=[]model.Tweet}
// @Failure 400 {object} response.Response
// @Router /tweets [get]
func (h *Handler) ListTweets(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.BadRequest(c, "user_id is required")
		return
	}
	list, err := h.tweets.ListByUser(c.Request.Context(), userID, queryInt(c, "limit", 20))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, list)
}

// DeleteTweet 删除推文（仅作者）
// @Summary 删除推文
// @Tags 推文
// @Security BearerAuth
// @Param id path string true "推文ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /tweets/{id} [delete]
func (h *Handler) DeleteTweet(c *gin.Context) {
	if err := h.tweets.Delete(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}
