package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/newsfeed/internal/api/middleware"
	"github.com/d60-Lab/newsfeed/internal/service"
	"github.com/d60-Lab/newsfeed/pkg/response"
)

type followResult struct {
	Outcome string `json:"outcome"`
}

type unfollowResult struct {
	Deleted int64 `json:"deleted"`
}

type pagedIDs struct {
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Total    int64    `json:"total"`
	List     []string `json:"list"`
}

// Follow 关注用户
// @Summary 关注用户
// @Description 关系写入后同步失效被关注者的粉丝缓存，紧随其后的发推一定能扇出到当前用户
// @Tags 关系链
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "被关注者ID"
// @Success 200 {object} response.Response{data=followResult} "已关注"
// @Success 201 {object} response.Response{data=followResult}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /friendships/{user_id}/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	outcome, err := h.directory.Follow(c.Request.Context(), middleware.CurrentUserID(c), c.Param("user_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	if outcome == service.FollowCreated {
		response.Created(c, followResult{Outcome: outcome.String()})
		return
	}
	response.Success(c, followResult{Outcome: outcome.String()})
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关系链
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "被关注者ID"
// @Success 200 {object} response.Response{data=unfollowResult}
// @Failure 400 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /friendships/{user_id}/unfollow [post]
func (h *Handler) Unfollow(c *gin.Context) {
	n, err := h.directory.Unfollow(c.Request.Context(), middleware.CurrentUserID(c), c.Param("user_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, unfollowResult{Deleted: n})
}

// ListFollowers 查询粉丝
// @Summary 查询粉丝列表
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量(最大20)" default(20)
// @Success 200 {object} response.Response{data=pagedIDs}
// @Router /friendships/{user_id}/followers [get]
func (h *Handler) ListFollowers(c *gin.Context) {
	page, pageSize := queryInt(c, "page", 1), queryInt(c, "page_size", 20)
	list, total, err := h.directory.ListFollowers(c.Request.Context(), c.Param("user_id"), page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pagedIDs{Page: page, PageSize: pageSize, Total: total, List: list})
}

// ListFollowings 查询关注的人
// @Summary 查询关注列表
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量(最大20)" default(20)
// @Success 200 {object} response.Response{data=pagedIDs}
// @Router /friendships/{user_id}/followings [get]
func (h *Handler) ListFollowings(c *gin.Context) {
	page, pageSize := queryInt(c, "page", 1), queryInt(c, "page_size", 20)
	list, total, err := h.directory.ListFollowings(c.Request.Context(), c.Param("user_id"), page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pagedIDs{Page: page, PageSize: pageSize, Total: total, List: list})
}
