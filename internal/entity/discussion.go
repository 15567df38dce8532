package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Discussion is one message in a Topic's thread. A nil ParentID marks the
// thread root, created together with its Topic.
type Discussion struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TopicID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"topic_id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	IsEdited  bool       `gorm:"not null;default:false" json:"is_edited"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	IsDeleted bool       `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *Discussion) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == uuid.Nil {
		d.ID, err = uuid.NewV7()
	}
	return
}

func (d *Discussion) IsRoot() bool {
	return d.ParentID == nil
}
