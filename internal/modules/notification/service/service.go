package service

import (
	"context"
	"encoding/json"
	"fmt"

	"biogy.com/biogyapi/internal/entity"
	notifDto "biogy.com/biogyapi/internal/modules/notification/dto"
	notifRepo "biogy.com/biogyapi/internal/modules/notification/repository"
	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/dto"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel is the Redis pub/sub channel carrying a user's live notifications.
func Channel(userID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", userID.String())
}

type NotificationService interface {
	// Notify persists and publishes a notification. Failures are logged and
	// never returned, so callers can fire it after their own mutation.
	Notify(ctx context.Context, notification *entity.Notification)
	List(ctx context.Context, userID uuid.UUID, pagination dto.Pagination) (*notifDto.NotificationListResponse, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	ForgetUser(ctx context.Context, userID uuid.UUID) error
}

type notificationService struct {
	repo        notifRepo.NotificationRepository
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewNotificationService(repo notifRepo.NotificationRepository, redisClient *redis.Client, logger *zap.Logger) NotificationService {
	return &notificationService{
		repo:        repo,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (s *notificationService) Notify(ctx context.Context, notification *entity.Notification) {
	// Avoid notifying the user themselves
	if notification.UserID == notification.ActorID {
		return
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		s.logger.Warn("failed to store notification",
			zap.Error(err),
			zap.String("type", notification.Type),
			zap.String("entity_id", notification.EntityID.String()),
		)
		return
	}

	if s.redisClient == nil {
		return
	}

	// Live clients render the actor, which Create does not load.
	if stored, err := s.repo.FindByID(ctx, notification.ID); err == nil {
		notification = stored
	} else {
		s.logger.Warn("failed to load notification actor",
			zap.Error(err),
			zap.String("notification_id", notification.ID.String()),
		)
	}

	payload, err := json.Marshal(toResponse(notification))
	if err != nil {
		s.logger.Warn("failed to encode notification", zap.Error(err))
		return
	}
	if err := s.redisClient.Publish(ctx, Channel(notification.UserID), payload).Err(); err != nil {
		s.logger.Warn("failed to publish notification",
			zap.Error(err),
			zap.String("notification_id", notification.ID.String()),
		)
	}
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, pagination dto.Pagination) (*notifDto.NotificationListResponse, error) {
	pagination = pagination.Normalize()

	notifications, total, err := s.repo.ListByUser(ctx, userID, pagination.Offset(), pagination.Limit)
	if err != nil {
		return nil, err
	}

	data := make([]notifDto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		data = append(data, toResponse(&notifications[i]))
	}

	return &notifDto.NotificationListResponse{
		Data: data,
		Meta: dto.NewPaginationMeta(pagination, total),
	}, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	found, err := s.repo.MarkAsRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("notification not found: %w", apperror.ErrNotFound)
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *notificationService) ForgetUser(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteByUser(ctx, userID)
}

func toResponse(n *entity.Notification) notifDto.NotificationResponse {
	var username, role string
	if n.Actor != nil {
		username, role = n.Actor.Username, n.Actor.Role
	}
	return notifDto.NotificationResponse{
		ID:         n.ID,
		Type:       n.Type,
		Message:    n.Message,
		EntityID:   n.EntityID,
		EntityType: n.EntityType,
		IsRead:     n.IsRead,
		Actor:      dto.Author(n.ActorID, username, role),
		CreatedAt:  n.CreatedAt,
	}
}
