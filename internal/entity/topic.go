package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CategoryGeneral      = "general"
	CategoryQuestion     = "question"
	CategoryDiscussion   = "discussion"
	CategoryAnnouncement = "announcement"
	CategoryResource     = "resource"

	MaxTitleLength   = 100
	MaxContentLength = 5000

	// DeletedContent replaces the text of a soft-deleted Discussion.
	DeletedContent = "[This message has been deleted]"
)

var Categories = []string{
	CategoryGeneral,
	CategoryQuestion,
	CategoryDiscussion,
	CategoryAnnouncement,
	CategoryResource,
}

func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

type Topic struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID                   `gorm:"type:uuid;not null;index" json:"user_id"`
	User         User                        `gorm:"foreignKey:UserID" json:"-"`
	Title        string                      `gorm:"size:100;not null" json:"title"`
	Content      string                      `gorm:"type:text;not null" json:"content"`
	Category     string                      `gorm:"size:30;not null;default:general;index" json:"category"`
	Tags         datatypes.JSONSlice[string] `json:"tags"`
	Views        int                         `gorm:"not null;default:0" json:"views"`
	IsSticky     bool                        `gorm:"not null;default:false;index:idx_topics_listing,priority:1" json:"is_sticky"`
	IsClosed     bool                        `gorm:"not null;default:false" json:"is_closed"`
	LastActivity time.Time                   `gorm:"not null;index:idx_topics_listing,priority:2" json:"last_activity"`
	CreatedAt    time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *Topic) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID, err = uuid.NewV7()
	}
	if t.LastActivity.IsZero() {
		t.LastActivity = time.Now()
	}
	return
}
