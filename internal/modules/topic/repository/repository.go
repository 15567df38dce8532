package repository

import (
	"context"
	"strings"
	"time"

	"biogy.com/biogyapi/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TopicFilter narrows topic listings. Empty fields match everything.
type TopicFilter struct {
	Category string
	Search   string
	UserID   uuid.UUID
}

// DiscussionStats are the derived properties of a topic's thread.
type DiscussionStats struct {
	Count  int64
	Latest *entity.Discussion
}

type TopicRepository interface {
	// CreateWithRoot stores the topic and its root discussion atomically.
	CreateWithRoot(ctx context.Context, topic *entity.Topic, root *entity.Discussion) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Topic, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]entity.Topic, error)
	List(ctx context.Context, filter TopicFilter, offset, limit int) ([]entity.Topic, int64, error)
	FindIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	Stats(ctx context.Context, topicIDs []uuid.UUID) (map[uuid.UUID]DiscussionStats, error)
	// Update saves the editable fields. A non-nil rootContent is mirrored into
	// the root discussion in the same transaction.
	Update(ctx context.Context, topic *entity.Topic, rootContent *string) error
	IncrementViews(ctx context.Context, id uuid.UUID) error
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	// Delete removes the topic and every discussion in it, returning the ids
	// of the removed discussions.
	Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type topicRepository struct {
	db *gorm.DB
}

func NewTopicRepository(db *gorm.DB) TopicRepository {
	return &topicRepository{db: db}
}

func (r *topicRepository) CreateWithRoot(ctx context.Context, topic *entity.Topic, root *entity.Discussion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(topic).Error; err != nil {
			return err
		}

		root.TopicID = topic.ID
		root.ParentID = nil
		return tx.Omit(clause.Associations).Create(root).Error
	})
}

func (r *topicRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Topic, error) {
	var topic entity.Topic
	if err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&topic).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *topicRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]entity.Topic, error) {
	topics := make(map[uuid.UUID]entity.Topic, len(ids))
	if len(ids) == 0 {
		return topics, nil
	}

	var found []entity.Topic
	if err := r.db.WithContext(ctx).Preload("User").Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	for _, t := range found {
		topics[t.ID] = t
	}
	return topics, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *topicRepository) List(ctx context.Context, filter TopicFilter, offset, limit int) ([]entity.Topic, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Topic{})

	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where(`LOWER(title) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(search))+"%")
	}
	if filter.UserID != uuid.Nil {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var topics []entity.Topic
	err := query.
		Preload("User").
		Order("is_sticky DESC").
		Order("last_activity DESC").
		Offset(offset).
		Limit(limit).
		Find(&topics).Error
	return topics, total, err
}

func (r *topicRepository) FindIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&entity.Topic{}).Where("user_id = ?", userID).Pluck("id", &ids).Error
	return ids, err
}

func (r *topicRepository) Stats(ctx context.Context, topicIDs []uuid.UUID) (map[uuid.UUID]DiscussionStats, error) {
	stats := make(map[uuid.UUID]DiscussionStats, len(topicIDs))
	if len(topicIDs) == 0 {
		return stats, nil
	}

	type countResult struct {
		TopicID uuid.UUID
		Count   int64
	}
	var counts []countResult
	if err := r.db.WithContext(ctx).
		Model(&entity.Discussion{}).
		Select("topic_id, count(*) as count").
		Where("topic_id IN ?", topicIDs).
		Group("topic_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats[c.TopicID] = DiscussionStats{Count: c.Count}
	}

	latest := r.db.Model(&entity.Discussion{}).
		Select("topic_id, MAX(created_at) AS max_created").
		Where("topic_id IN ?", topicIDs).
		Group("topic_id")

	var discussions []entity.Discussion
	if err := r.db.WithContext(ctx).
		Select("discussions.*").
		Preload("User").
		Joins("JOIN (?) AS latest ON discussions.topic_id = latest.topic_id AND discussions.created_at = latest.max_created", latest).
		Find(&discussions).Error; err != nil {
		return nil, err
	}
	for i := range discussions {
		d := discussions[i]
		s := stats[d.TopicID]
		if s.Latest == nil {
			s.Latest = &d
			stats[d.TopicID] = s
		}
	}

	return stats, nil
}

func (r *topicRepository) Update(ctx context.Context, topic *entity.Topic, rootContent *string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.Topic{ID: topic.ID}).
			Select("title", "content", "category", "tags", "is_sticky", "is_closed").
			Updates(map[string]interface{}{
				"title":     topic.Title,
				"content":   topic.Content,
				"category":  topic.Category,
				"tags":      topic.Tags,
				"is_sticky": topic.IsSticky,
				"is_closed": topic.IsClosed,
			}).Error; err != nil {
			return err
		}

		if rootContent == nil {
			return nil
		}
		return tx.Model(&entity.Discussion{}).
			Where("topic_id = ? AND parent_id IS NULL AND is_deleted = ?", topic.ID, false).
			Update("content", *rootContent).Error
	})
}

func (r *topicRepository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&entity.Topic{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1)).Error
}

func (r *topicRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.Topic{}).
		Where("id = ?", id).
		UpdateColumn("last_activity", at).Error
}

func (r *topicRepository) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var discussionIDs []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.Discussion{}).Where("topic_id = ?", id).Pluck("id", &discussionIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("topic_id = ?", id).Delete(&entity.Discussion{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entity.Topic{}).Error
	})
	return discussionIDs, err
}
