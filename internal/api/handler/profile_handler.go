package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/newsfeed/internal/api/middleware"
	"github.com/d60-Lab/newsfeed/internal/service"
	"github.com/d60-Lab/newsfeed/pkg/response"
)

// GetProfile 查询用户资料
// @Summary 用户资料
// @Tags 资料
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=model.UserProfile}
// @Failure 404 {object} response.Response
// @Router /profiles/{user_id} [get]
func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, p)
}

// UpdateProfile 修改当前用户资料
// @Summary 修改资料
// @Tags 资料
// @Accept json
// @Security BearerAuth
// @Param request body service.UpdateProfileInput true "资料字段，缺省不修改"
// @Success 200 {object} response.Response{data=model.UserProfile}
// @Failure 400 {object} response.Response
// @Router /profiles/me [put]
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req service.UpdateProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), middleware.CurrentUserID(c), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, p)
}
