package handler

import (
	"net/http"

	"biogy.com/biogyapi/internal/authz"
	discussionDto "biogy.com/biogyapi/internal/modules/discussion/dto"
	discussion "biogy.com/biogyapi/internal/modules/discussion/service"
	"biogy.com/biogyapi/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DiscussionHandler struct {
	service discussion.DiscussionService
}

func NewDiscussionHandler(service discussion.DiscussionService) *DiscussionHandler {
	return &DiscussionHandler{service: service}
}

func (h *DiscussionHandler) CreateDiscussion(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	topicID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req discussionDto.CreateDiscussionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	var parentID *uuid.UUID
	if req.ParentID != "" {
		id, err := uuid.Parse(req.ParentID)
		if err != nil {
			response.BindError(c, err)
			return
		}
		parentID = &id
	}

	resp, err := h.service.CreateDiscussion(c.Request.Context(), actor, topicID, req.Content, parentID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (h *DiscussionHandler) GetThread(c *gin.Context) {
	topicID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	thread, err := h.service.GetThread(c.Request.Context(), authz.OptionalActor(c), topicID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": thread})
}

func (h *DiscussionHandler) GetDiscussion(c *gin.Context) {
	id, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.GetDiscussion(c.Request.Context(), authz.OptionalActor(c), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *DiscussionHandler) UpdateDiscussion(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	id, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req discussionDto.UpdateDiscussionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	resp, err := h.service.UpdateDiscussion(c.Request.Context(), actor, id, req.Content)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *DiscussionHandler) DeleteDiscussion(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	id, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	mode, err := h.service.DeleteDiscussion(c.Request.Context(), actor, id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": discussionDto.DeleteResponse{Mode: mode}})
}

func (h *DiscussionHandler) ToggleLike(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	id, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.ToggleLike(c.Request.Context(), actor, id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
