package dto

import (
	"time"

	"biogy.com/biogyapi/pkg/dto"
	"github.com/google/uuid"
)

type NotificationResponse struct {
	ID         uuid.UUID          `json:"id"`
	Type       string             `json:"type"`
	Message    string             `json:"message"`
	EntityID   uuid.UUID          `json:"entity_id"`
	EntityType string             `json:"entity_type"`
	IsRead     bool               `json:"is_read"`
	Actor      dto.AuthorResponse `json:"actor"`
	CreatedAt  time.Time          `json:"created_at"`
}

type NotificationListResponse struct {
	Data []NotificationResponse `json:"data"`
	Meta dto.PaginationMeta     `json:"meta"`
}
