package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/newsfeed/internal/api/middleware"
	"github.com/d60-Lab/newsfeed/internal/service"
	"github.com/d60-Lab/newsfeed/pkg/response"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Signup 注册
// @Summary 注册
// @Tags 账号
// @Accept json
// @Produce json
// @Param request body service.SignupInput true "注册信息"
// @Success 201 {object} response.Response{data=model.User}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /accounts/signup [post]
func (h *Handler) Signup(c *gin.Context) {
	var req service.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.accounts.Signup(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, u)
}

// Login 登录
// @Summary 登录，返回访问令牌
// @Tags 账号
// @Accept json
// @Produce json
// @Param request body loginRequest true "用户名密码"
// @Success 200 {object} response.Response{data=service.LoginResult}
// @Failure 401 {object} response.Response
// @Router /accounts/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

// DeleteAccount 注销当前账号
// @Summary 注销账号
// @Tags 账号
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /accounts/me [delete]
func (h *Handler) DeleteAccount(c *gin.Context) {
	if err := h.accounts.Delete(c.Request.Context(), middleware.CurrentUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}
