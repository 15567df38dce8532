package repository

import (
	"context"

	"biogy.com/biogyapi/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostFilter narrows post listings. Empty fields match everything.
type PostFilter struct {
	Status string
	UserID uuid.UUID
}

type PostRepository interface {
	Create(ctx context.Context, post *entity.Post) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Post, error)
	// List returns posts newest first with authors and comments loaded.
	List(ctx context.Context, filter PostFilter, offset, limit int) ([]entity.Post, int64, error)
	FindIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	UpdateModeration(ctx context.Context, post *entity.Post) error
	AddComment(ctx context.Context, comment *entity.PostComment) error
	// Delete removes the post together with its comments.
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteCommentsByUser(ctx context.Context, userID uuid.UUID) error
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func preloadComments(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC")
}

func (r *postRepository) Create(ctx context.Context, post *entity.Post) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error
}

func (r *postRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Post, error) {
	var post entity.Post
	if err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Comments", preloadComments).
		Preload("Comments.User").
		Where("id = ?", id).
		First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, filter PostFilter, offset, limit int) ([]entity.Post, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Post{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != uuid.Nil {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var posts []entity.Post
	err := query.
		Preload("User").
		Preload("Comments", preloadComments).
		Preload("Comments.User").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&posts).Error
	return posts, total, err
}

func (r *postRepository) FindIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&entity.Post{}).Where("user_id = ?", userID).Pluck("id", &ids).Error
	return ids, err
}

func (r *postRepository) UpdateModeration(ctx context.Context, post *entity.Post) error {
	return r.db.WithContext(ctx).
		Model(&entity.Post{ID: post.ID}).
		Select("status", "moderated_by", "moderated_at").
		Updates(map[string]interface{}{
			"status":       post.Status,
			"moderated_by": post.ModeratedBy,
			"moderated_at": post.ModeratedAt,
		}).Error
}

func (r *postRepository) AddComment(ctx context.Context, comment *entity.PostComment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error
}

func (r *postRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&entity.PostComment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entity.Post{}).Error
	})
}

func (r *postRepository) DeleteCommentsByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&entity.PostComment{}).Error
}
