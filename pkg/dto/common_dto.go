package dto

import "github.com/google/uuid"

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 50
)

type AuthorResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     string    `json:"role,omitempty"`
}

type Pagination struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=50"`
}

// Normalize fills defaults and clamps limit.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	Limit       int   `json:"limit"`
}

func NewPaginationMeta(p Pagination, total int64) PaginationMeta {
	totalPages := int(total) / p.Limit
	if int(total)%p.Limit != 0 {
		totalPages++
	}

	return PaginationMeta{
		CurrentPage: p.Page,
		TotalPages:  totalPages,
		TotalItems:  total,
		Limit:       p.Limit,
	}
}

type LikeResponse struct {
	Liked      bool  `json:"liked"`
	LikesCount int64 `json:"likes_count"`
}

// Author falls back to "Unknown" for content whose author no longer exists.
func Author(id uuid.UUID, username, role string) AuthorResponse {
	if username == "" {
		return AuthorResponse{ID: id, Username: "Unknown"}
	}
	return AuthorResponse{ID: id, Username: username, Role: role}
}
