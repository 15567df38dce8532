package handler

import (
	"net/http"

	"biogy.com/biogyapi/internal/authz"
	userDto "biogy.com/biogyapi/internal/modules/user/dto"
	user "biogy.com/biogyapi/internal/modules/user/service"
	"biogy.com/biogyapi/pkg/dto"
	"biogy.com/biogyapi/pkg/response"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	service user.UserService
}

func NewUserHandler(service user.UserService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req userDto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	resp, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	profile, err := h.service.GetProfile(c.Request.Context(), c.Param("username"), authz.OptionalActor(c))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (h *UserHandler) ToggleFollow(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.ToggleFollow(c.Request.Context(), actor, c.Param("username"))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *UserHandler) Followers(c *gin.Context) {
	var pagination dto.Pagination
	if err := c.ShouldBindQuery(&pagination); err != nil {
		response.BindError(c, err)
		return
	}

	resp, err := h.service.Followers(c.Request.Context(), c.Param("username"), pagination)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) Following(c *gin.Context) {
	var pagination dto.Pagination
	if err := c.ShouldBindQuery(&pagination); err != nil {
		response.BindError(c, err)
		return
	}

	resp, err := h.service.Following(c.Request.Context(), c.Param("username"), pagination)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *UserHandler) UpdateRole(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	userID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req userDto.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	resp, err := h.service.UpdateRole(c.Request.Context(), actor, userID, req.Role)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	userID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.DeleteUser(c.Request.Context(), actor, userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "user deleted successfully"})
}
