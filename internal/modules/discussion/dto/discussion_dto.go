package dto

import (
	"time"

	"biogy.com/biogyapi/pkg/dto"
	"github.com/google/uuid"
)

type CreateDiscussionRequest struct {
	Content  string `json:"content" binding:"required,max=5000"`
	ParentID string `json:"parent_id" binding:"omitempty,uuid"`
}

type UpdateDiscussionRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

type DiscussionResponse struct {
	ID         uuid.UUID            `json:"id"`
	TopicID    uuid.UUID            `json:"topic_id"`
	ParentID   *uuid.UUID           `json:"parent_id,omitempty"`
	Content    string               `json:"content"`
	Author     dto.AuthorResponse   `json:"author"`
	IsRoot     bool                 `json:"is_root"`
	IsEdited   bool                 `json:"is_edited"`
	EditedAt   *time.Time           `json:"edited_at,omitempty"`
	IsDeleted  bool                 `json:"is_deleted"`
	LikesCount int64                `json:"likes_count"`
	IsLiked    bool                 `json:"is_liked"`
	ReplyCount int64                `json:"reply_count"`
	Replies    []DiscussionResponse `json:"replies,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// ThreadResponse is a topic's discussion tree, root first.
type ThreadResponse struct {
	TopicID uuid.UUID           `json:"topic_id"`
	Root    *DiscussionResponse `json:"root"`
	Total   int                 `json:"total"`
}

// DeleteResponse tells the client whether the record was kept as a tombstone.
type DeleteResponse struct {
	Mode string `json:"mode"`
}
