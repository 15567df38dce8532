package dto

import (
	"io"
	"time"

	"biogy.com/biogyapi/pkg/dto"
	"github.com/google/uuid"
)

// UploadFile is the media received with a new post.
type UploadFile struct {
	Reader      io.Reader
	FileName    string
	ContentType string
}

type CreatePostRequest struct {
	Caption string `form:"caption" binding:"max=500"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=approved rejected"`
}

type AddCommentRequest struct {
	Text string `json:"text" binding:"required,max=1000"`
}

type ModerationFilter struct {
	dto.Pagination
	Status string `form:"status" binding:"omitempty,oneof=pending approved rejected"`
}

type CommentResponse struct {
	ID        uuid.UUID          `json:"id"`
	Text      string             `json:"text"`
	Author    dto.AuthorResponse `json:"author"`
	CreatedAt time.Time          `json:"created_at"`
}

type PostResponse struct {
	ID          uuid.UUID          `json:"id"`
	Author      dto.AuthorResponse `json:"author"`
	FileURL     string             `json:"file_url"`
	MediaType   string             `json:"media_type"`
	Caption     string             `json:"caption"`
	Status      string             `json:"status"`
	ModeratedBy *uuid.UUID         `json:"moderated_by,omitempty"`
	ModeratedAt *time.Time         `json:"moderated_at,omitempty"`
	LikesCount  int64              `json:"likes_count"`
	IsLiked     bool               `json:"is_liked"`
	Comments    []CommentResponse  `json:"comments"`
	CreatedAt   time.Time          `json:"created_at"`
}

type PostListResponse struct {
	Data []PostResponse     `json:"data"`
	Meta dto.PaginationMeta `json:"meta"`
}
