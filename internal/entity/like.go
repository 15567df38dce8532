package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LikeRefPost       = "post"
	LikeRefTopic      = "topic"
	LikeRefDiscussion = "discussion"
	// LikeRefUser backs the follow graph: the liking user follows the referenced user.
	LikeRefUser = "user"
)

// Like is one member of an engagement set. The unique index keeps the set
// free of duplicates even under racing toggles.
type Like struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_likes_unique,priority:1;index" json:"user_id"`
	ReferenceID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_likes_unique,priority:2;index:idx_likes_lookup,priority:1" json:"reference_id"`
	ReferenceType string    `gorm:"size:20;not null;uniqueIndex:idx_likes_unique,priority:3;index:idx_likes_lookup,priority:2" json:"reference_type"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l *Like) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == uuid.Nil {
		l.ID, err = uuid.NewV7()
	}
	return
}
