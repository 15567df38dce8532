package handler

import (
	"fmt"
	"net/http"

	"biogy.com/biogyapi/internal/authz"
	postDto "biogy.com/biogyapi/internal/modules/post/dto"
	post "biogy.com/biogyapi/internal/modules/post/service"
	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/dto"
	"biogy.com/biogyapi/pkg/response"
	"github.com/gin-gonic/gin"
)

// MaxUploadSize bounds the media accepted with a new post.
const MaxUploadSize = 50 << 20

type PostHandler struct {
	service post.PostService
}

func NewPostHandler(service post.PostService) *PostHandler {
	return &PostHandler{service: service}
}

func (h *PostHandler) CreatePost(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req postDto.CreatePostRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BindError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.ResponseError(c, fmt.Errorf("a media file is required: %w", apperror.ErrInvalidInput))
		return
	}
	if fileHeader.Size > MaxUploadSize {
		response.ResponseError(c, fmt.Errorf("file exceeds %d MB: %w", MaxUploadSize>>20, apperror.ErrInvalidInput))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	defer file.Close()

	resp, err := h.service.CreatePost(c.Request.Context(), actor, postDto.UploadFile{
		Reader:      file,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}, req.Caption)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (h *PostHandler) ListApproved(c *gin.Context) {
	var pagination dto.Pagination
	if err := c.ShouldBindQuery(&pagination); err != nil {
		response.BindError(c, err)
		return
	}

	posts, err := h.service.ListApproved(c.Request.Context(), authz.OptionalActor(c), pagination)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, posts)
}

func (h *PostHandler) ListForModeration(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var filter postDto.ModerationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BindError(c, err)
		return
	}

	posts, err := h.service.ListForModeration(c.Request.Context(), actor, filter.Status, filter.Pagination)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, posts)
}

func (h *PostHandler) ListByUser(c *gin.Context) {
	var pagination dto.Pagination
	if err := c.ShouldBindQuery(&pagination); err != nil {
		response.BindError(c, err)
		return
	}

	posts, err := h.service.ListByUser(c.Request.Context(), authz.OptionalActor(c), c.Param("username"), pagination)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, posts)
}

func (h *PostHandler) UpdateStatus(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	postID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req postDto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	resp, err := h.service.TransitionStatus(c.Request.Context(), actor, postID, req.Status)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *PostHandler) ToggleLike(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	postID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.ToggleLike(c.Request.Context(), actor, postID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *PostHandler) AddComment(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	postID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req postDto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), actor, postID, req.Text)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": comment})
}

func (h *PostHandler) DeletePost(c *gin.Context) {
	actor, err := authz.GetActor(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	postID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.DeletePost(c.Request.Context(), actor, postID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "post deleted successfully"})
}
