package dto

import (
	"time"

	"biogy.com/biogyapi/pkg/dto"
	"github.com/google/uuid"
)

type CreateTopicRequest struct {
	Title    string   `json:"title" binding:"required,max=100"`
	Content  string   `json:"content" binding:"required,max=5000"`
	Category string   `json:"category" binding:"omitempty,oneof=general question discussion announcement resource"`
	Tags     []string `json:"tags" binding:"omitempty,max=10,dive,max=30"`
}

// UpdateTopicRequest carries only the fields being changed.
type UpdateTopicRequest struct {
	Title    *string   `json:"title" binding:"omitempty,max=100"`
	Content  *string   `json:"content" binding:"omitempty,max=5000"`
	Category *string   `json:"category" binding:"omitempty,oneof=general question discussion announcement resource"`
	Tags     *[]string `json:"tags" binding:"omitempty,max=10,dive,max=30"`
	IsSticky *bool     `json:"is_sticky"`
	IsClosed *bool     `json:"is_closed"`
}

type TopicFilter struct {
	dto.Pagination
	Category string `form:"category" binding:"omitempty,oneof=general question discussion announcement resource"`
	Search   string `form:"search" binding:"omitempty,max=100"`
}

type SearchQuery struct {
	dto.Pagination
	Query string `form:"q" binding:"required,max=100"`
}

type LatestDiscussion struct {
	ID        uuid.UUID          `json:"id"`
	Content   string             `json:"content"`
	Author    dto.AuthorResponse `json:"author"`
	CreatedAt time.Time          `json:"created_at"`
}

type TopicResponse struct {
	ID               uuid.UUID          `json:"id"`
	Title            string             `json:"title"`
	Content          string             `json:"content"`
	Category         string             `json:"category"`
	Tags             []string           `json:"tags"`
	Author           dto.AuthorResponse `json:"author"`
	Views            int                `json:"views"`
	IsSticky         bool               `json:"is_sticky"`
	IsClosed         bool               `json:"is_closed"`
	LikesCount       int64              `json:"likes_count"`
	IsLiked          bool               `json:"is_liked"`
	DiscussionCount  int64              `json:"discussion_count"`
	LatestDiscussion *LatestDiscussion  `json:"latest_discussion,omitempty"`
	LastActivity     time.Time          `json:"last_activity"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

type TopicListResponse struct {
	Data []TopicResponse    `json:"data"`
	Meta dto.PaginationMeta `json:"meta"`
}
