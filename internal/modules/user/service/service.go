package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"biogy.com/biogyapi/internal/authz"
	"biogy.com/biogyapi/internal/entity"
	likeService "biogy.com/biogyapi/internal/modules/like/service"
	notifService "biogy.com/biogyapi/internal/modules/notification/service"
	userDto "biogy.com/biogyapi/internal/modules/user/dto"
	userRepo "biogy.com/biogyapi/internal/modules/user/repository"
	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/dto"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	PolicyRetain  = "retain"
	PolicyCascade = "cascade"
)

// ContentPurger removes everything a user authored in one store. It is only
// consulted under the cascade delete policy.
type ContentPurger interface {
	PurgeByUser(ctx context.Context, userID uuid.UUID) error
}

type UserService interface {
	Register(ctx context.Context, req userDto.RegisterRequest) (*userDto.UserResponse, error)
	GetProfile(ctx context.Context, username string, viewer authz.Actor) (*userDto.ProfileResponse, error)
	ToggleFollow(ctx context.Context, actor authz.Actor, username string) (*userDto.FollowResponse, error)
	Followers(ctx context.Context, username string, pagination dto.Pagination) (*userDto.UserListResponse, error)
	Following(ctx context.Context, username string, pagination dto.Pagination) (*userDto.UserListResponse, error)
	UpdateRole(ctx context.Context, actor authz.Actor, userID uuid.UUID, role string) (*userDto.UserResponse, error)
	DeleteUser(ctx context.Context, actor authz.Actor, userID uuid.UUID) error
}

type userService struct {
	repo          userRepo.UserRepository
	likes         likeService.LikeService
	notifications notifService.NotificationService
	purgers       []ContentPurger
	deletePolicy  string
	logger        *zap.Logger
}

// NewUserService wires the user directory. purgers run in order when the
// delete policy is cascade.
func NewUserService(repo userRepo.UserRepository, likes likeService.LikeService, notifications notifService.NotificationService, deletePolicy string, logger *zap.Logger, purgers ...ContentPurger) UserService {
	return &userService{
		repo:          repo,
		likes:         likes,
		notifications: notifications,
		purgers:       purgers,
		deletePolicy:  deletePolicy,
		logger:        logger,
	}
}

func (s *userService) Register(ctx context.Context, req userDto.RegisterRequest) (*userDto.UserResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, fmt.Errorf("username and password are required: %w", apperror.ErrInvalidInput)
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("username already taken: %w", apperror.ErrConflict)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entity.User{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         entity.RoleStudent,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

func (s *userService) GetProfile(ctx context.Context, username string, viewer authz.Actor) (*userDto.ProfileResponse, error) {
	user, err := s.findByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	followers, err := s.likes.Count(ctx, user.ID, entity.LikeRefUser)
	if err != nil {
		return nil, err
	}
	_, following, err := s.likes.References(ctx, user.ID, entity.LikeRefUser, 0, 1)
	if err != nil {
		return nil, err
	}
	isFollowing, err := s.likes.IsLiked(ctx, viewer.ID, user.ID, entity.LikeRefUser)
	if err != nil {
		return nil, err
	}

	return &userDto.ProfileResponse{
		UserResponse:   toUserResponse(user),
		Bio:            user.Bio,
		FollowersCount: followers,
		FollowingCount: following,
		IsFollowing:    isFollowing,
	}, nil
}

func (s *userService) ToggleFollow(ctx context.Context, actor authz.Actor, username string) (*userDto.FollowResponse, error) {
	if !actor.IsAuthenticated() {
		return nil, apperror.ErrUnauthorized
	}

	target, err := s.findByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, fmt.Errorf("you cannot follow yourself: %w", apperror.ErrInvalidInput)
	}

	result, err := s.likes.Toggle(ctx, actor.ID, target.ID, entity.LikeRefUser)
	if err != nil {
		return nil, err
	}

	if result.Liked {
		s.notifications.Notify(ctx, &entity.Notification{
			UserID:     target.ID,
			ActorID:    actor.ID,
			EntityID:   actor.ID,
			EntityType: entity.LikeRefUser,
			Type:       entity.NotificationFollow,
			Message:    "You have a new follower",
		})
	}

	return &userDto.FollowResponse{Following: result.Liked, FollowersCount: result.LikesCount}, nil
}

func (s *userService) Followers(ctx context.Context, username string, pagination dto.Pagination) (*userDto.UserListResponse, error) {
	user, err := s.findByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	pagination = pagination.Normalize()
	ids, total, err := s.likes.Members(ctx, user.ID, entity.LikeRefUser, pagination.Offset(), pagination.Limit)
	if err != nil {
		return nil, err
	}
	return s.userList(ctx, ids, total, pagination)
}

func (s *userService) Following(ctx context.Context, username string, pagination dto.Pagination) (*userDto.UserListResponse, error) {
	user, err := s.findByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	pagination = pagination.Normalize()
	ids, total, err := s.likes.References(ctx, user.ID, entity.LikeRefUser, pagination.Offset(), pagination.Limit)
	if err != nil {
		return nil, err
	}
	return s.userList(ctx, ids, total, pagination)
}

func (s *userService) UpdateRole(ctx context.Context, actor authz.Actor, userID uuid.UUID, role string) (*userDto.UserResponse, error) {
	if !authz.Authorize(actor, authz.ActionManageUsers, authz.Resource{}) {
		return nil, fmt.Errorf("only admins can change roles: %w", apperror.ErrForbidden)
	}
	if !authz.ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q: %w", role, apperror.ErrInvalidInput)
	}

	if err := s.repo.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// DeleteUser removes a user. Under the retain policy authored content stays
// and renders with an unknown author; under cascade it is deleted first
// through the owning stores.
func (s *userService) DeleteUser(ctx context.Context, actor authz.Actor, userID uuid.UUID) error {
	if !authz.Authorize(actor, authz.ActionManageUsers, authz.Resource{}) {
		return fmt.Errorf("only admins can delete users: %w", apperror.ErrForbidden)
	}
	if actor.ID == userID {
		return fmt.Errorf("admins cannot delete their own account: %w", apperror.ErrInvalidInput)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("user not found: %w", apperror.ErrNotFound)
		}
		return err
	}

	if s.deletePolicy == PolicyCascade {
		for _, purger := range s.purgers {
			if err := purger.PurgeByUser(ctx, user.ID); err != nil {
				return fmt.Errorf("failed to remove content of user %s: %w", user.Username, err)
			}
		}
	}

	if err := s.likes.ForgetUser(ctx, user.ID); err != nil {
		return err
	}
	if err := s.notifications.ForgetUser(ctx, user.ID); err != nil {
		s.logger.Warn("failed to remove notifications of deleted user", zap.Error(err), zap.String("user_id", user.ID.String()))
	}

	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("user deleted",
		zap.String("user_id", user.ID.String()),
		zap.String("policy", s.deletePolicy),
		zap.String("by", actor.ID.String()),
	)
	return nil
}

func (s *userService) findByUsername(ctx context.Context, username string) (*entity.User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) userList(ctx context.Context, ids []uuid.UUID, total int64, pagination dto.Pagination) (*userDto.UserListResponse, error) {
	users, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	data := make([]userDto.UserResponse, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			data = append(data, toUserResponse(&u))
		}
	}

	return &userDto.UserListResponse{
		Data: data,
		Meta: dto.NewPaginationMeta(pagination, total),
	}, nil
}

func toUserResponse(user *entity.User) userDto.UserResponse {
	return userDto.UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}
