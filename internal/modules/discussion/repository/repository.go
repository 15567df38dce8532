package repository

import (
	"context"

	"biogy.com/biogyapi/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DiscussionRepository interface {
	Create(ctx context.Context, discussion *entity.Discussion) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Discussion, error)
	FindRoot(ctx context.Context, topicID uuid.UUID) (*entity.Discussion, error)
	// ListByTopic returns the whole thread oldest first.
	ListByTopic(ctx context.Context, topicID uuid.UUID) ([]entity.Discussion, error)
	CountReplies(ctx context.Context, id uuid.UUID) (int64, error)
	// FindByUser returns the user's discussions newest first.
	FindByUser(ctx context.Context, userID uuid.UUID) ([]entity.Discussion, error)
	Update(ctx context.Context, discussion *entity.Discussion) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type discussionRepository struct {
	db *gorm.DB
}

func NewDiscussionRepository(db *gorm.DB) DiscussionRepository {
	return &discussionRepository{db: db}
}

func (r *discussionRepository) Create(ctx context.Context, discussion *entity.Discussion) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(discussion).Error
}

func (r *discussionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Discussion, error) {
	var discussion entity.Discussion
	if err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&discussion).Error; err != nil {
		return nil, err
	}
	return &discussion, nil
}

func (r *discussionRepository) FindRoot(ctx context.Context, topicID uuid.UUID) (*entity.Discussion, error) {
	var discussion entity.Discussion
	if err := r.db.WithContext(ctx).
		Where("topic_id = ? AND parent_id IS NULL", topicID).
		Order("created_at ASC").
		First(&discussion).Error; err != nil {
		return nil, err
	}
	return &discussion, nil
}

func (r *discussionRepository) ListByTopic(ctx context.Context, topicID uuid.UUID) ([]entity.Discussion, error) {
	var discussions []entity.Discussion
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("topic_id = ?", topicID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&discussions).Error
	return discussions, err
}

func (r *discussionRepository) CountReplies(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Discussion{}).Where("parent_id = ?", id).Count(&count).Error
	return count, err
}

func (r *discussionRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]entity.Discussion, error) {
	var discussions []entity.Discussion
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&discussions).Error
	return discussions, err
}

func (r *discussionRepository) Update(ctx context.Context, discussion *entity.Discussion) error {
	return r.db.WithContext(ctx).
		Model(&entity.Discussion{ID: discussion.ID}).
		Select("content", "is_edited", "edited_at", "is_deleted").
		Updates(map[string]interface{}{
			"content":    discussion.Content,
			"is_edited":  discussion.IsEdited,
			"edited_at":  discussion.EditedAt,
			"is_deleted": discussion.IsDeleted,
		}).Error
}

func (r *discussionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.Discussion{}).Error
}
