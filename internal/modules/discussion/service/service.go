package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"biogy.com/biogyapi/internal/authz"
	"biogy.com/biogyapi/internal/entity"
	"biogy.com/biogyapi/internal/metrics"
	discussionDto "biogy.com/biogyapi/internal/modules/discussion/dto"
	discussionRepo "biogy.com/biogyapi/internal/modules/discussion/repository"
	likeService "biogy.com/biogyapi/internal/modules/like/service"
	notifService "biogy.com/biogyapi/internal/modules/notification/service"
	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/dto"
	"biogy.com/biogyapi/pkg/ratelimiter"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DeleteModeSoft = "soft"
	DeleteModeHard = "hard"
)

// TopicStore is the part of the topic repository a thread needs.
type TopicStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Topic, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type DiscussionService interface {
	// CreateDiscussion replies to parentID, or to the thread root when it is nil.
	CreateDiscussion(ctx context.Context, actor authz.Actor, topicID uuid.UUID, content string, parentID *uuid.UUID) (*discussionDto.DiscussionResponse, error)
	GetDiscussion(ctx context.Context, viewer authz.Actor, id uuid.UUID) (*discussionDto.DiscussionResponse, error)
	GetThread(ctx context.Context, viewer authz.Actor, topicID uuid.UUID) (*discussionDto.ThreadResponse, error)
	UpdateDiscussion(ctx context.Context, actor authz.Actor, id uuid.UUID, content string) (*discussionDto.DiscussionResponse, error)
	// DeleteDiscussion soft-deletes roots and discussions with replies and
	// hard-deletes leaves. It reports which mode was applied.
	DeleteDiscussion(ctx context.Context, actor authz.Actor, id uuid.UUID) (string, error)
	ToggleLike(ctx context.Context, actor authz.Actor, id uuid.UUID) (*dto.LikeResponse, error)
	PurgeByUser(ctx context.Context, userID uuid.UUID) error
}

type discussionService struct {
	repo          discussionRepo.DiscussionRepository
	topics        TopicStore
	likes         likeService.LikeService
	notifications notifService.NotificationService
	limiter       *ratelimiter.Limiter
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

func NewDiscussionService(repo discussionRepo.DiscussionRepository, topics TopicStore, likes likeService.LikeService, notifications notifService.NotificationService, limiter *ratelimiter.Limiter, m *metrics.Metrics, logger *zap.Logger) DiscussionService {
	return &discussionService{
		repo:          repo,
		topics:        topics,
		likes:         likes,
		notifications: notifications,
		limiter:       limiter,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *discussionService) CreateDiscussion(ctx context.Context, actor authz.Actor, topicID uuid.UUID, content string, parentID *uuid.UUID) (*discussionDto.DiscussionResponse, error) {
	if !actor.IsAuthenticated() {
		return nil, apperror.ErrUnauthorized
	}

	content, err := requireContent(content)
	if err != nil {
		return nil, err
	}

	topic, err := s.topics.FindByID(ctx, topicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("topic not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}
	if topic.IsClosed {
		return nil, fmt.Errorf("topic is closed: %w", apperror.ErrForbidden)
	}

	var parent *entity.Discussion
	if parentID != nil {
		parent, err = s.findDiscussion(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.TopicID != topic.ID {
			return nil, fmt.Errorf("parent discussion belongs to another topic: %w", apperror.ErrInvalidInput)
		}
	} else {
		parent, err = s.repo.FindRoot(ctx, topic.ID)
		if err != nil {
			return nil, err
		}
	}

	release, err := s.limiter.Acquire(ctx, actor.ID, ratelimiter.ScopeDiscussion)
	if err != nil {
		return nil, err
	}

	discussion := &entity.Discussion{
		TopicID:  topic.ID,
		UserID:   actor.ID,
		ParentID: &parent.ID,
		Content:  content,
	}
	if err := s.repo.Create(ctx, discussion); err != nil {
		release()
		return nil, err
	}

	// The reply stands even if the activity bump fails.
	if err := s.topics.Touch(ctx, topic.ID, discussion.CreatedAt); err != nil {
		s.logger.Warn("failed to bump topic activity", zap.Error(err), zap.String("topic_id", topic.ID.String()))
	}

	s.metrics.IncrementDiscussionCreated()
	s.notifyReply(ctx, actor, topic, parent, discussion)

	created, err := s.repo.FindByID(ctx, discussion.ID)
	if err != nil {
		return nil, err
	}
	return s.single(ctx, actor, created)
}

func (s *discussionService) GetDiscussion(ctx context.Context, viewer authz.Actor, id uuid.UUID) (*discussionDto.DiscussionResponse, error) {
	discussion, err := s.findDiscussion(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.single(ctx, viewer, discussion)
}

func (s *discussionService) GetThread(ctx context.Context, viewer authz.Actor, topicID uuid.UUID) (*discussionDto.ThreadResponse, error) {
	if _, err := s.topics.FindByID(ctx, topicID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("topic not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}

	all, err := s.repo.ListByTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(all))
	for _, d := range all {
		ids = append(ids, d.ID)
	}
	likes, err := s.likes.Summaries(ctx, viewer.ID, ids, entity.LikeRefDiscussion)
	if err != nil {
		return nil, err
	}

	// Convert all to DTOs, then link children to parents oldest first.
	nodes := make(map[uuid.UUID]*discussionDto.DiscussionResponse, len(all))
	for i := range all {
		node := mapToResponse(&all[i], likes[all[i].ID], 0)
		nodes[all[i].ID] = &node
	}

	var root *discussionDto.DiscussionResponse
	children := make(map[uuid.UUID][]uuid.UUID, len(all))
	for _, d := range all {
		if d.ParentID == nil {
			if root == nil {
				root = nodes[d.ID]
			}
			continue
		}
		children[*d.ParentID] = append(children[*d.ParentID], d.ID)
	}

	var attach func(node *discussionDto.DiscussionResponse)
	attach = func(node *discussionDto.DiscussionResponse) {
		for _, childID := range children[node.ID] {
			child := nodes[childID]
			attach(child)
			node.Replies = append(node.Replies, *child)
		}
		node.ReplyCount = int64(len(children[node.ID]))
	}
	if root != nil {
		attach(root)
	}

	return &discussionDto.ThreadResponse{
		TopicID: topicID,
		Root:    root,
		Total:   len(all),
	}, nil
}

func (s *discussionService) UpdateDiscussion(ctx context.Context, actor authz.Actor, id uuid.UUID, content string) (*discussionDto.DiscussionResponse, error) {
	discussion, err := s.findDiscussion(ctx, id)
	if err != nil {
		return nil, err
	}

	if !authz.Authorize(actor, authz.ActionUpdateDiscussion, authz.Owned(discussion.UserID)) {
		return nil, fmt.Errorf("you can only edit your own discussion: %w", apperror.ErrForbidden)
	}
	if discussion.IsDeleted {
		return nil, fmt.Errorf("deleted discussions cannot be edited: %w", apperror.ErrConflict)
	}

	content, err = requireContent(content)
	if err != nil {
		return nil, err
	}

	now := s.now()
	discussion.Content = content
	discussion.IsEdited = true
	discussion.EditedAt = &now
	if err := s.repo.Update(ctx, discussion); err != nil {
		return nil, err
	}

	return s.single(ctx, actor, discussion)
}

func (s *discussionService) DeleteDiscussion(ctx context.Context, actor authz.Actor, id uuid.UUID) (string, error) {
	discussion, err := s.findDiscussion(ctx, id)
	if err != nil {
		return "", err
	}

	if !authz.Authorize(actor, authz.ActionDeleteDiscussion, authz.Owned(discussion.UserID)) {
		return "", fmt.Errorf("you can only delete your own discussion: %w", apperror.ErrForbidden)
	}

	return s.remove(ctx, discussion)
}

func (s *discussionService) ToggleLike(ctx context.Context, actor authz.Actor, id uuid.UUID) (*dto.LikeResponse, error) {
	if !actor.IsAuthenticated() {
		return nil, apperror.ErrUnauthorized
	}

	discussion, err := s.findDiscussion(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.likes.Toggle(ctx, actor.ID, discussion.ID, entity.LikeRefDiscussion)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementLikeToggled(entity.LikeRefDiscussion, result.Liked)
	if result.Liked {
		s.notifications.Notify(ctx, &entity.Notification{
			UserID:     discussion.UserID,
			ActorID:    actor.ID,
			EntityID:   discussion.ID,
			EntityType: entity.LikeRefDiscussion,
			Type:       entity.NotificationLike,
			Message:    "Someone liked your reply",
		})
	}
	return result, nil
}

// PurgeByUser applies the deletion policy to every discussion of userID.
// Newest first, so a user's own nested replies go before their parents.
func (s *discussionService) PurgeByUser(ctx context.Context, userID uuid.UUID) error {
	discussions, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return err
	}

	for i := range discussions {
		if discussions[i].IsDeleted {
			continue
		}
		if _, err := s.remove(ctx, &discussions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *discussionService) remove(ctx context.Context, discussion *entity.Discussion) (string, error) {
	replies, err := s.repo.CountReplies(ctx, discussion.ID)
	if err != nil {
		return "", err
	}

	if discussion.IsRoot() || replies > 0 {
		discussion.Content = entity.DeletedContent
		discussion.IsDeleted = true
		if err := s.repo.Update(ctx, discussion); err != nil {
			return "", err
		}
		s.metrics.IncrementDeletion(entity.LikeRefDiscussion, DeleteModeSoft)
		return DeleteModeSoft, nil
	}

	if err := s.repo.Delete(ctx, discussion.ID); err != nil {
		return "", err
	}
	if err := s.likes.Forget(ctx, []uuid.UUID{discussion.ID}, entity.LikeRefDiscussion); err != nil {
		s.logger.Warn("failed to clear likes of deleted discussion", zap.Error(err), zap.String("discussion_id", discussion.ID.String()))
	}
	s.metrics.IncrementDeletion(entity.LikeRefDiscussion, DeleteModeHard)
	return DeleteModeHard, nil
}

func (s *discussionService) notifyReply(ctx context.Context, actor authz.Actor, topic *entity.Topic, parent, reply *entity.Discussion) {
	notification := &entity.Notification{
		ActorID:    actor.ID,
		EntityID:   reply.ID,
		EntityType: entity.LikeRefDiscussion,
	}

	if parent.IsRoot() {
		notification.UserID = topic.UserID
		notification.Type = entity.NotificationReplyTopic
		notification.Message = fmt.Sprintf("Someone replied to your topic '%s'", topic.Title)
	} else {
		notification.UserID = parent.UserID
		notification.Type = entity.NotificationReplyDiscussion
		notification.Message = fmt.Sprintf("Someone replied to your message in '%s'", topic.Title)
	}

	s.notifications.Notify(ctx, notification)
}

func (s *discussionService) findDiscussion(ctx context.Context, id uuid.UUID) (*entity.Discussion, error) {
	discussion, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("discussion not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}
	return discussion, nil
}

func (s *discussionService) single(ctx context.Context, viewer authz.Actor, discussion *entity.Discussion) (*discussionDto.DiscussionResponse, error) {
	likes, err := s.likes.Summaries(ctx, viewer.ID, []uuid.UUID{discussion.ID}, entity.LikeRefDiscussion)
	if err != nil {
		return nil, err
	}
	replies, err := s.repo.CountReplies(ctx, discussion.ID)
	if err != nil {
		return nil, err
	}

	resp := mapToResponse(discussion, likes[discussion.ID], replies)
	return &resp, nil
}

func mapToResponse(d *entity.Discussion, likes dto.LikeResponse, replies int64) discussionDto.DiscussionResponse {
	return discussionDto.DiscussionResponse{
		ID:         d.ID,
		TopicID:    d.TopicID,
		ParentID:   d.ParentID,
		Content:    d.Content,
		Author:     dto.Author(d.UserID, d.User.Username, d.User.Role),
		IsRoot:     d.IsRoot(),
		IsEdited:   d.IsEdited,
		EditedAt:   d.EditedAt,
		IsDeleted:  d.IsDeleted,
		LikesCount: likes.LikesCount,
		IsLiked:    likes.Liked,
		ReplyCount: replies,
		CreatedAt:  d.CreatedAt,
	}
}

func requireContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("content is required: %w", apperror.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > entity.MaxContentLength {
		return "", fmt.Errorf("content must be at most %d characters: %w", entity.MaxContentLength, apperror.ErrInvalidInput)
	}
	return content, nil
}
