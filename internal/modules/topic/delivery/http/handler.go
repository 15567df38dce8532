package handler

import (
	"net/http"

	"biogy.com/biogyapi/internal/authz"
	topicDto "biogy.com/biogyapi/internal/modules/topic/dto"
	topic "biogy.com/biogyapi/internal/modules/topic/service"
	"biogy.com/biogyapi/pkg/response"
	"github.com/gin-gonic/gin"
)

type TopicHandler struct {
	service topic.TopicService
}

func NewTopicHandler(service topic.TopicService) *TopicHandler {
	return &TopicHandler{service: service}
}

func (h *TopicHandler) CreateTopic(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req topicDto.CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	resp, err := h.service.CreateTopic(c.Request.Context(), actor, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (h *TopicHandler) ListTopics(c *gin.Context) {
	var filter topicDto.TopicFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BindError(c, err)
		return
	}

	topics, err := h.service.ListTopics(c.Request.Context(), authz.OptionalActor(c), filter)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, topics)
}

func (h *TopicHandler) SearchTopics(c *gin.Context) {
	var query topicDto.SearchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	topics, err := h.service.SearchTopics(c.Request.Context(), authz.OptionalActor(c), query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, topics)
}

func (h *TopicHandler) GetTopic(c *gin.Context) {
	id, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.GetTopic(c.Request.Context(), authz.OptionalActor(c), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *TopicHandler) UpdateTopic(c *gin.Context) {
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

	var req topicDto.UpdateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	resp, err := h.service.UpdateTopic(c.Request.Context(), actor, id, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *TopicHandler) DeleteTopic(c *gin.Context) {
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

	if err := h.service.DeleteTopic(c.Request.Context(), actor, id); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "topic deleted successfully"})
}

func (h *TopicHandler) ToggleLike(c *gin.Context) {
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
