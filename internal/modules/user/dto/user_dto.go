package dto

import (
	"time"

	"biogy.com/biogyapi/pkg/dto"
	"github.com/google/uuid"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,alphanum"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=student admin"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type ProfileResponse struct {
	UserResponse
	Bio            *string `json:"bio,omitempty"`
	FollowersCount int64   `json:"followers_count"`
	FollowingCount int64   `json:"following_count"`
	IsFollowing    bool    `json:"is_following"`
}

type FollowResponse struct {
	Following      bool  `json:"following"`
	FollowersCount int64 `json:"followers_count"`
}

type UserListResponse struct {
	Data []UserResponse     `json:"data"`
	Meta dto.PaginationMeta `json:"meta"`
}
