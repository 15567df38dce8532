package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"biogy.com/biogyapi/internal/authz"
	"biogy.com/biogyapi/internal/entity"
	"biogy.com/biogyapi/internal/metrics"
	likeService "biogy.com/biogyapi/internal/modules/like/service"
	notifService "biogy.com/biogyapi/internal/modules/notification/service"
	search "biogy.com/biogyapi/internal/modules/search/service"
	topicDto "biogy.com/biogyapi/internal/modules/topic/dto"
	topicRepo "biogy.com/biogyapi/internal/modules/topic/repository"
	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/dto"
	"biogy.com/biogyapi/pkg/ratelimiter"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TopicService interface {
	CreateTopic(ctx context.Context, actor authz.Actor, req topicDto.CreateTopicRequest) (*topicDto.TopicResponse, error)
	ListTopics(ctx context.Context, viewer authz.Actor, filter topicDto.TopicFilter) (*topicDto.TopicListResponse, error)
	SearchTopics(ctx context.Context, viewer authz.Actor, query topicDto.SearchQuery) (*topicDto.TopicListResponse, error)
	// GetTopic counts a view only for authenticated viewers.
	GetTopic(ctx context.Context, viewer authz.Actor, id uuid.UUID) (*topicDto.TopicResponse, error)
	UpdateTopic(ctx context.Context, actor authz.Actor, id uuid.UUID, req topicDto.UpdateTopicRequest) (*topicDto.TopicResponse, error)
	DeleteTopic(ctx context.Context, actor authz.Actor, id uuid.UUID) error
	ToggleLike(ctx context.Context, actor authz.Actor, id uuid.UUID) (*dto.LikeResponse, error)
	PurgeByUser(ctx context.Context, userID uuid.UUID) error
}

type topicService struct {
	topicRepo     topicRepo.TopicRepository
	likes         likeService.LikeService
	notifications notifService.NotificationService
	meili         search.MeiliSearchService
	limiter       *ratelimiter.Limiter
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewTopicService(topicRepo topicRepo.TopicRepository, likes likeService.LikeService, notifications notifService.NotificationService, meili search.MeiliSearchService, limiter *ratelimiter.Limiter, m *metrics.Metrics, logger *zap.Logger) TopicService {
	return &topicService{
		topicRepo:     topicRepo,
		likes:         likes,
		notifications: notifications,
		meili:         meili,
		limiter:       limiter,
		metrics:       m,
		logger:        logger,
	}
}

func (s *topicService) CreateTopic(ctx context.Context, actor authz.Actor, req topicDto.CreateTopicRequest) (*topicDto.TopicResponse, error) {
	if !actor.IsAuthenticated() {
		return nil, apperror.ErrUnauthorized
	}

	title, err := requireText("title", req.Title, entity.MaxTitleLength)
	if err != nil {
		return nil, err
	}
	content, err := requireText("content", req.Content, entity.MaxContentLength)
	if err != nil {
		return nil, err
	}

	category := req.Category
	if category == "" {
		category = entity.CategoryGeneral
	}
	if !entity.ValidCategory(category) {
		return nil, fmt.Errorf("unknown category %q: %w", category, apperror.ErrInvalidInput)
	}

	release, err := s.limiter.Acquire(ctx, actor.ID, ratelimiter.ScopeTopic)
	if err != nil {
		return nil, err
	}

	topic := &entity.Topic{
		UserID:   actor.ID,
		Title:    title,
		Content:  content,
		Category: category,
		Tags:     normalizeTags(req.Tags),
	}
	root := &entity.Discussion{
		UserID:  actor.ID,
		Content: content,
	}

	if err := s.topicRepo.CreateWithRoot(ctx, topic, root); err != nil {
		release()
		return nil, err
	}

	s.metrics.IncrementTopicCreated()

	created, err := s.topicRepo.FindByID(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	s.index(created)

	return s.single(ctx, actor, created)
}

func (s *topicService) ListTopics(ctx context.Context, viewer authz.Actor, filter topicDto.TopicFilter) (*topicDto.TopicListResponse, error) {
	pagination := filter.Pagination.Normalize()

	topics, total, err := s.topicRepo.List(ctx, topicRepo.TopicFilter{
		Category: filter.Category,
		Search:   filter.Search,
	}, pagination.Offset(), pagination.Limit)
	if err != nil {
		return nil, err
	}

	data, err := s.mapTopics(ctx, viewer, topics)
	if err != nil {
		return nil, err
	}

	return &topicDto.TopicListResponse{
		Data: data,
		Meta: dto.NewPaginationMeta(pagination, total),
	}, nil
}

// SearchTopics ranks topics with the search index. Without an index it falls
// back to the title match of ListTopics.
func (s *topicService) SearchTopics(ctx context.Context, viewer authz.Actor, query topicDto.SearchQuery) (*topicDto.TopicListResponse, error) {
	if s.meili == nil {
		return s.ListTopics(ctx, viewer, topicDto.TopicFilter{Pagination: query.Pagination, Search: query.Query})
	}

	pagination := query.Pagination.Normalize()
	ids, total, err := s.meili.SearchTopics(query.Query, pagination.Offset(), pagination.Limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %v: %w", err, apperror.ErrDependency)
	}

	found, err := s.topicRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Keep relevance order; skip hits deleted since they were indexed.
	topics := make([]entity.Topic, 0, len(ids))
	for _, id := range ids {
		if t, ok := found[id]; ok {
			topics = append(topics, t)
		}
	}

	data, err := s.mapTopics(ctx, viewer, topics)
	if err != nil {
		return nil, err
	}

	return &topicDto.TopicListResponse{
		Data: data,
		Meta: dto.NewPaginationMeta(pagination, total),
	}, nil
}

func (s *topicService) GetTopic(ctx context.Context, viewer authz.Actor, id uuid.UUID) (*topicDto.TopicResponse, error) {
	topic, err := s.findTopic(ctx, id)
	if err != nil {
		return nil, err
	}

	if viewer.IsAuthenticated() {
		if err := s.topicRepo.IncrementViews(ctx, topic.ID); err != nil {
			s.logger.Warn("failed to count topic view", zap.Error(err), zap.String("topic_id", topic.ID.String()))
		} else {
			topic.Views++
		}
	}

	return s.single(ctx, viewer, topic)
}

// UpdateTopic applies the given fields. Sticky and closed flags from
// non-admins are ignored without error.
func (s *topicService) UpdateTopic(ctx context.Context, actor authz.Actor, id uuid.UUID, req topicDto.UpdateTopicRequest) (*topicDto.TopicResponse, error) {
	topic, err := s.findTopic(ctx, id)
	if err != nil {
		return nil, err
	}

	if !authz.Authorize(actor, authz.ActionUpdateTopic, authz.Owned(topic.UserID)) {
		return nil, fmt.Errorf("you can only edit your own topic: %w", apperror.ErrForbidden)
	}

	if req.Title != nil {
		if topic.Title, err = requireText("title", *req.Title, entity.MaxTitleLength); err != nil {
			return nil, err
		}
	}

	var rootContent *string
	if req.Content != nil {
		content, err := requireText("content", *req.Content, entity.MaxContentLength)
		if err != nil {
			return nil, err
		}
		if content != topic.Content {
			topic.Content = content
			rootContent = &content
		}
	}

	if req.Category != nil {
		if !entity.ValidCategory(*req.Category) {
			return nil, fmt.Errorf("unknown category %q: %w", *req.Category, apperror.ErrInvalidInput)
		}
		topic.Category = *req.Category
	}

	if req.Tags != nil {
		topic.Tags = normalizeTags(*req.Tags)
	}

	if authz.Authorize(actor, authz.ActionSetTopicFlags, authz.Owned(topic.UserID)) {
		if req.IsSticky != nil {
			topic.IsSticky = *req.IsSticky
		}
		if req.IsClosed != nil {
			topic.IsClosed = *req.IsClosed
		}
	}

	if err := s.topicRepo.Update(ctx, topic, rootContent); err != nil {
		return nil, err
	}

	s.index(topic)
	return s.single(ctx, actor, topic)
}

func (s *topicService) DeleteTopic(ctx context.Context, actor authz.Actor, id uuid.UUID) error {
	topic, err := s.findTopic(ctx, id)
	if err != nil {
		return err
	}

	if !authz.Authorize(actor, authz.ActionDeleteTopic, authz.Owned(topic.UserID)) {
		return fmt.Errorf("you can only delete your own topic: %w", apperror.ErrForbidden)
	}

	return s.remove(ctx, topic.ID)
}

func (s *topicService) ToggleLike(ctx context.Context, actor authz.Actor, id uuid.UUID) (*dto.LikeResponse, error) {
	if !actor.IsAuthenticated() {
		return nil, apperror.ErrUnauthorized
	}

	topic, err := s.findTopic(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.likes.Toggle(ctx, actor.ID, topic.ID, entity.LikeRefTopic)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementLikeToggled(entity.LikeRefTopic, result.Liked)
	if result.Liked {
		s.notifications.Notify(ctx, &entity.Notification{
			UserID:     topic.UserID,
			ActorID:    actor.ID,
			EntityID:   topic.ID,
			EntityType: entity.LikeRefTopic,
			Type:       entity.NotificationLike,
			Message:    fmt.Sprintf("Someone liked your topic '%s'", topic.Title),
		})
	}
	return result, nil
}

// PurgeByUser deletes every topic of userID with its whole thread.
func (s *topicService) PurgeByUser(ctx context.Context, userID uuid.UUID) error {
	ids, err := s.topicRepo.FindIDsByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.remove(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *topicService) remove(ctx context.Context, id uuid.UUID) error {
	discussionIDs, err := s.topicRepo.Delete(ctx, id)
	if err != nil {
		return err
	}

	if err := s.likes.Forget(ctx, []uuid.UUID{id}, entity.LikeRefTopic); err != nil {
		s.logger.Warn("failed to clear likes of deleted topic", zap.Error(err), zap.String("topic_id", id.String()))
	}
	if err := s.likes.Forget(ctx, discussionIDs, entity.LikeRefDiscussion); err != nil {
		s.logger.Warn("failed to clear likes of deleted discussions", zap.Error(err), zap.String("topic_id", id.String()))
	}

	if s.meili != nil {
		if err := s.meili.DeleteTopic(id); err != nil {
			s.logger.Warn("failed to remove topic from search index", zap.Error(err), zap.String("topic_id", id.String()))
		}
	}

	s.metrics.IncrementDeletion(entity.LikeRefTopic, "hard")
	return nil
}

func (s *topicService) index(topic *entity.Topic) {
	if s.meili == nil {
		return
	}
	if err := s.meili.IndexTopic(topic); err != nil {
		s.logger.Warn("failed to index topic", zap.Error(err), zap.String("topic_id", topic.ID.String()))
	}
}

func (s *topicService) findTopic(ctx context.Context, id uuid.UUID) (*entity.Topic, error) {
	topic, err := s.topicRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("topic not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}
	return topic, nil
}

func (s *topicService) single(ctx context.Context, viewer authz.Actor, topic *entity.Topic) (*topicDto.TopicResponse, error) {
	data, err := s.mapTopics(ctx, viewer, []entity.Topic{*topic})
	if err != nil {
		return nil, err
	}
	return &data[0], nil
}

func (s *topicService) mapTopics(ctx context.Context, viewer authz.Actor, topics []entity.Topic) ([]topicDto.TopicResponse, error) {
	ids := make([]uuid.UUID, 0, len(topics))
	for _, t := range topics {
		ids = append(ids, t.ID)
	}

	stats, err := s.topicRepo.Stats(ctx, ids)
	if err != nil {
		return nil, err
	}
	likes, err := s.likes.Summaries(ctx, viewer.ID, ids, entity.LikeRefTopic)
	if err != nil {
		return nil, err
	}

	data := make([]topicDto.TopicResponse, 0, len(topics))
	for i := range topics {
		data = append(data, mapToResponse(&topics[i], stats[topics[i].ID], likes[topics[i].ID]))
	}
	return data, nil
}

func mapToResponse(topic *entity.Topic, stats topicRepo.DiscussionStats, likes dto.LikeResponse) topicDto.TopicResponse {
	tags := []string(topic.Tags)
	if tags == nil {
		tags = []string{}
	}

	resp := topicDto.TopicResponse{
		ID:              topic.ID,
		Title:           topic.Title,
		Content:         topic.Content,
		Category:        topic.Category,
		Tags:            tags,
		Author:          dto.Author(topic.UserID, topic.User.Username, topic.User.Role),
		Views:           topic.Views,
		IsSticky:        topic.IsSticky,
		IsClosed:        topic.IsClosed,
		LikesCount:      likes.LikesCount,
		IsLiked:         likes.Liked,
		DiscussionCount: stats.Count,
		LastActivity:    topic.LastActivity,
		CreatedAt:       topic.CreatedAt,
		UpdatedAt:       topic.UpdatedAt,
	}

	if latest := stats.Latest; latest != nil {
		resp.LatestDiscussion = &topicDto.LatestDiscussion{
			ID:        latest.ID,
			Content:   latest.Content,
			Author:    dto.Author(latest.UserID, latest.User.Username, latest.User.Role),
			CreatedAt: latest.CreatedAt,
		}
	}
	return resp
}

func requireText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is required: %w", field, apperror.ErrInvalidInput)
	}
	if utf8.RuneCountInString(value) > max {
		return "", fmt.Errorf("%s must be at most %d characters: %w", field, max, apperror.ErrInvalidInput)
	}
	return value, nil
}

func normalizeTags(tags []string) datatypes.JSONSlice[string] {
	seen := make(map[string]bool, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		normalized = append(normalized, tag)
	}
	return datatypes.JSONSlice[string](normalized)
}
