package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PostStatusPending  = "pending"
	PostStatusApproved = "approved"
	PostStatusRejected = "rejected"

	MediaTypeImage = "image"
	MediaTypeVideo = "video"

	MaxCaptionLength = 500
)

type Post struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	User         User          `gorm:"foreignKey:UserID" json:"-"`
	FileURL      string        `gorm:"type:text;not null" json:"file_url"`
	FilePublicID string        `gorm:"size:255;not null" json:"-"`
	MediaType    string        `gorm:"size:10;not null" json:"media_type"`
	Caption      string        `gorm:"size:500" json:"caption"`
	Status       string        `gorm:"size:20;not null;default:pending;index:idx_posts_status_created,priority:1" json:"status"`
	ModeratedBy  *uuid.UUID    `gorm:"type:uuid" json:"moderated_by,omitempty"`
	ModeratedAt  *time.Time    `json:"moderated_at,omitempty"`
	Comments     []PostComment `gorm:"foreignKey:PostID" json:"comments,omitempty"`
	CreatedAt    time.Time     `gorm:"autoCreateTime;index:idx_posts_status_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID, err = uuid.NewV7()
	}
	return
}

// PostComment is an append-only comment on a Post.
type PostComment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PostID    uuid.UUID `gorm:"type:uuid;not null;index" json:"post_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (c *PostComment) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID, err = uuid.NewV7()
	}
	return
}
