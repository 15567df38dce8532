package repository

import (
	"context"

	"biogy.com/biogyapi/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LikeRepository persists engagement sets as rows of (user, reference).
type LikeRepository interface {
	// Toggle adds the user to the set if absent and removes it otherwise.
	// It reports whether the user is a member afterwards.
	Toggle(ctx context.Context, userID, refID uuid.UUID, refType string) (bool, error)
	IsMember(ctx context.Context, userID, refID uuid.UUID, refType string) (bool, error)
	Count(ctx context.Context, refID uuid.UUID, refType string) (int64, error)
	CountMany(ctx context.Context, refIDs []uuid.UUID, refType string) (map[uuid.UUID]int64, error)
	MemberIDs(ctx context.Context, userID uuid.UUID, refIDs []uuid.UUID, refType string) (map[uuid.UUID]bool, error)
	// Members lists the users in the set of refID.
	Members(ctx context.Context, refID uuid.UUID, refType string, offset, limit int) ([]uuid.UUID, int64, error)
	// References lists the references of refType whose set contains userID.
	References(ctx context.Context, userID uuid.UUID, refType string, offset, limit int) ([]uuid.UUID, int64, error)
	DeleteByReferences(ctx context.Context, refIDs []uuid.UUID, refType string) error
	// DeleteByUser removes every edge from or to the user and returns the
	// edges whose sets changed.
	DeleteByUser(ctx context.Context, userID uuid.UUID) ([]entity.Like, error)
}

type likeRepository struct {
	db *gorm.DB
}

func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

func (r *likeRepository) Toggle(ctx context.Context, userID, refID uuid.UUID, refType string) (bool, error) {
	// Use Find with slice to avoid "record not found" log noise from GORM's First()
	var existing []entity.Like
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND reference_id = ? AND reference_type = ?", userID, refID, refType).
		Limit(1).
		Find(&existing).Error; err != nil {
		return false, err
	}

	if len(existing) > 0 {
		if err := r.db.WithContext(ctx).Delete(&existing[0]).Error; err != nil {
			return false, err
		}
		return false, nil
	}

	like := &entity.Like{UserID: userID, ReferenceID: refID, ReferenceType: refType}
	if err := r.db.WithContext(ctx).Create(like).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *likeRepository) IsMember(ctx context.Context, userID, refID uuid.UUID, refType string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Like{}).
		Where("user_id = ? AND reference_id = ? AND reference_type = ?", userID, refID, refType).
		Count(&count).Error
	return count > 0, err
}

func (r *likeRepository) Count(ctx context.Context, refID uuid.UUID, refType string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Like{}).
		Where("reference_id = ? AND reference_type = ?", refID, refType).
		Count(&count).Error
	return count, err
}

func (r *likeRepository) CountMany(ctx context.Context, refIDs []uuid.UUID, refType string) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(refIDs))
	if len(refIDs) == 0 {
		return counts, nil
	}

	type result struct {
		ReferenceID uuid.UUID
		Count       int64
	}
	var results []result

	if err := r.db.WithContext(ctx).
		Model(&entity.Like{}).
		Select("reference_id, count(*) as count").
		Where("reference_id IN ? AND reference_type = ?", refIDs, refType).
		Group("reference_id").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	for _, res := range results {
		counts[res.ReferenceID] = res.Count
	}
	return counts, nil
}

func (r *likeRepository) MemberIDs(ctx context.Context, userID uuid.UUID, refIDs []uuid.UUID, refType string) (map[uuid.UUID]bool, error) {
	liked := make(map[uuid.UUID]bool, len(refIDs))
	if len(refIDs) == 0 || userID == uuid.Nil {
		return liked, nil
	}

	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&entity.Like{}).
		Where("user_id = ? AND reference_id IN ? AND reference_type = ?", userID, refIDs, refType).
		Pluck("reference_id", &ids).Error; err != nil {
		return nil, err
	}

	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

func (r *likeRepository) Members(ctx context.Context, refID uuid.UUID, refType string, offset, limit int) ([]uuid.UUID, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&entity.Like{}).
		Where("reference_id = ? AND reference_type = ?", refID, refType)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ids []uuid.UUID
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Pluck("user_id", &ids).Error; err != nil {
		return nil, 0, err
	}
	return ids, total, nil
}

func (r *likeRepository) References(ctx context.Context, userID uuid.UUID, refType string, offset, limit int) ([]uuid.UUID, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&entity.Like{}).
		Where("user_id = ? AND reference_type = ?", userID, refType)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ids []uuid.UUID
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Pluck("reference_id", &ids).Error; err != nil {
		return nil, 0, err
	}
	return ids, total, nil
}

func (r *likeRepository) DeleteByReferences(ctx context.Context, refIDs []uuid.UUID, refType string) error {
	if len(refIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("reference_id IN ? AND reference_type = ?", refIDs, refType).
		Delete(&entity.Like{}).Error
}

func (r *likeRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) ([]entity.Like, error) {
	var removed []entity.Like
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Edges from the user plus edges pointing at the user (their followers).
		const scope = "user_id = ? OR (reference_id = ? AND reference_type = ?)"

		if err := tx.Where(scope, userID, userID, entity.LikeRefUser).Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Where(scope, userID, userID, entity.LikeRefUser).Delete(&entity.Like{}).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
