package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"biogy.com/biogyapi/internal/authz"
	"biogy.com/biogyapi/internal/entity"
	"biogy.com/biogyapi/internal/metrics"
	likeService "biogy.com/biogyapi/internal/modules/like/service"
	notifService "biogy.com/biogyapi/internal/modules/notification/service"
	postDto "biogy.com/biogyapi/internal/modules/post/dto"
	postRepo "biogy.com/biogyapi/internal/modules/post/repository"
	userRepo "biogy.com/biogyapi/internal/modules/user/repository"
	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/dto"
	"biogy.com/biogyapi/pkg/ratelimiter"
	"biogy.com/biogyapi/pkg/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostService is the moderated content store.
type PostService interface {
	CreatePost(ctx context.Context, actor authz.Actor, file postDto.UploadFile, caption string) (*postDto.PostResponse, error)
	ListApproved(ctx context.Context, viewer authz.Actor, pagination dto.Pagination) (*postDto.PostListResponse, error)
	ListForModeration(ctx context.Context, actor authz.Actor, status string, pagination dto.Pagination) (*postDto.PostListResponse, error)
	ListByUser(ctx context.Context, viewer authz.Actor, username string, pagination dto.Pagination) (*postDto.PostListResponse, error)
	TransitionStatus(ctx context.Context, actor authz.Actor, postID uuid.UUID, to string) (*postDto.PostResponse, error)
	ToggleLike(ctx context.Context, actor authz.Actor, postID uuid.UUID) (*dto.LikeResponse, error)
	AddComment(ctx context.Context, actor authz.Actor, postID uuid.UUID, text string) (*postDto.CommentResponse, error)
	DeletePost(ctx context.Context, actor authz.Actor, postID uuid.UUID) error
	PurgeByUser(ctx context.Context, userID uuid.UUID) error
}

type postService struct {
	postRepo      postRepo.PostRepository
	userRepo      userRepo.UserRepository
	likes         likeService.LikeService
	notifications notifService.NotificationService
	blobStore     storage.BlobStore
	uploadFolder  string
	limiter       *ratelimiter.Limiter
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewPostService(postRepo postRepo.PostRepository, userRepo userRepo.UserRepository, likes likeService.LikeService, notifications notifService.NotificationService, blobStore storage.BlobStore, uploadFolder string, limiter *ratelimiter.Limiter, m *metrics.Metrics, logger *zap.Logger) PostService {
	return &postService{
		postRepo:      postRepo,
		userRepo:      userRepo,
		likes:         likes,
		notifications: notifications,
		blobStore:     blobStore,
		uploadFolder:  uploadFolder,
		limiter:       limiter,
		metrics:       m,
		logger:        logger,
	}
}

// CreatePost stores the media and records a pending post. Posts never skip
// moderation, whatever the creator's role.
func (s *postService) CreatePost(ctx context.Context, actor authz.Actor, file postDto.UploadFile, caption string) (*postDto.PostResponse, error) {
	if !actor.IsAuthenticated() {
		return nil, apperror.ErrUnauthorized
	}

	caption = strings.TrimSpace(caption)
	if len([]rune(caption)) > entity.MaxCaptionLength {
		return nil, fmt.Errorf("caption must be at most %d characters: %w", entity.MaxCaptionLength, apperror.ErrInvalidInput)
	}
	if file.Reader == nil {
		return nil, fmt.Errorf("a media file is required: %w", apperror.ErrInvalidInput)
	}
	mediaType, err := mediaTypeOf(file.ContentType)
	if err != nil {
		return nil, err
	}

	release, err := s.limiter.Acquire(ctx, actor.ID, ratelimiter.ScopePost)
	if err != nil {
		return nil, err
	}
	creationFailed := true
	defer func() {
		if creationFailed {
			release()
		}
	}()

	stored, err := s.blobStore.Store(ctx, file.Reader, storage.StoreOptions{
		Folder:       s.uploadFolder,
		FileName:     file.FileName,
		ResourceType: mediaType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store media: %v: %w", err, apperror.ErrDependency)
	}

	post := &entity.Post{
		UserID:       actor.ID,
		FileURL:      stored.URL,
		FilePublicID: stored.DeletableID,
		MediaType:    mediaType,
		Caption:      caption,
		Status:       entity.PostStatusPending,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		s.deleteBlob(ctx, stored.DeletableID)
		return nil, err
	}

	creationFailed = false
	s.metrics.IncrementPostCreated()

	created, err := s.postRepo.FindByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return s.mapToResponse(created, dto.LikeResponse{}), nil
}

func (s *postService) ListApproved(ctx context.Context, viewer authz.Actor, pagination dto.Pagination) (*postDto.PostListResponse, error) {
	return s.list(ctx, viewer, postRepo.PostFilter{Status: entity.PostStatusApproved}, pagination)
}

// ListForModeration lists posts of any status, optionally narrowed to one.
func (s *postService) ListForModeration(ctx context.Context, actor authz.Actor, status string, pagination dto.Pagination) (*postDto.PostListResponse, error) {
	if !authz.Authorize(actor, authz.ActionListAllPosts, authz.Resource{}) {
		return nil, fmt.Errorf("only admins can review posts: %w", apperror.ErrForbidden)
	}
	if status != "" && !validStatus(status) {
		return nil, fmt.Errorf("unknown status %q: %w", status, apperror.ErrInvalidInput)
	}
	return s.list(ctx, actor, postRepo.PostFilter{Status: status}, pagination)
}

// ListByUser shows only approved posts unless the viewer owns them or is an admin.
func (s *postService) ListByUser(ctx context.Context, viewer authz.Actor, username string, pagination dto.Pagination) (*postDto.PostListResponse, error) {
	owner, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}

	filter := postRepo.PostFilter{UserID: owner.ID, Status: entity.PostStatusApproved}
	if authz.Authorize(viewer, authz.ActionViewUnapproved, authz.Owned(owner.ID)) {
		filter.Status = ""
	}
	return s.list(ctx, viewer, filter, pagination)
}

func (s *postService) TransitionStatus(ctx context.Context, actor authz.Actor, postID uuid.UUID, to string) (*postDto.PostResponse, error) {
	if !authz.Authorize(actor, authz.ActionModeratePost, authz.Resource{}) {
		return nil, fmt.Errorf("only admins can moderate posts: %w", apperror.ErrForbidden)
	}
	if to != entity.PostStatusApproved && to != entity.PostStatusRejected {
		return nil, fmt.Errorf("status must be approved or rejected: %w", apperror.ErrInvalidInput)
	}

	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == to {
		return nil, fmt.Errorf("post is already %s: %w", to, apperror.ErrConflict)
	}

	now := time.Now()
	moderator := actor.ID
	post.Status = to
	post.ModeratedBy = &moderator
	post.ModeratedAt = &now
	if err := s.postRepo.UpdateModeration(ctx, post); err != nil {
		return nil, err
	}

	s.metrics.IncrementPostTransition(to)
	s.notifications.Notify(ctx, &entity.Notification{
		UserID:     post.UserID,
		ActorID:    actor.ID,
		EntityID:   post.ID,
		EntityType: entity.LikeRefPost,
		Type:       entity.NotificationModeration,
		Message:    fmt.Sprintf("Your post was %s", to),
	})

	summary, err := s.likeSummary(ctx, actor.ID, post.ID)
	if err != nil {
		return nil, err
	}
	return s.mapToResponse(post, summary), nil
}

func (s *postService) ToggleLike(ctx context.Context, actor authz.Actor, postID uuid.UUID) (*dto.LikeResponse, error) {
	if !actor.IsAuthenticated() {
		return nil, apperror.ErrUnauthorized
	}

	post, err := s.findVisiblePost(ctx, actor, postID)
	if err != nil {
		return nil, err
	}

	result, err := s.likes.Toggle(ctx, actor.ID, post.ID, entity.LikeRefPost)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementLikeToggled(entity.LikeRefPost, result.Liked)
	if result.Liked {
		s.notifications.Notify(ctx, &entity.Notification{
			UserID:     post.UserID,
			ActorID:    actor.ID,
			EntityID:   post.ID,
			EntityType: entity.LikeRefPost,
			Type:       entity.NotificationLike,
			Message:    "Someone liked your post",
		})
	}
	return result, nil
}

// AddComment appends a comment and returns only the new comment.
func (s *postService) AddComment(ctx context.Context, actor authz.Actor, postID uuid.UUID, text string) (*postDto.CommentResponse, error) {
	if !actor.IsAuthenticated() {
		return nil, apperror.ErrUnauthorized
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("comment text is required: %w", apperror.ErrInvalidInput)
	}

	post, err := s.findVisiblePost(ctx, actor, postID)
	if err != nil {
		return nil, err
	}

	release, err := s.limiter.Acquire(ctx, actor.ID, ratelimiter.ScopeComment)
	if err != nil {
		return nil, err
	}

	comment := &entity.PostComment{PostID: post.ID, UserID: actor.ID, Text: text}
	if err := s.postRepo.AddComment(ctx, comment); err != nil {
		release()
		return nil, err
	}

	s.notifications.Notify(ctx, &entity.Notification{
		UserID:     post.UserID,
		ActorID:    actor.ID,
		EntityID:   post.ID,
		EntityType: entity.LikeRefPost,
		Type:       entity.NotificationComment,
		Message:    "Someone commented on your post",
	})

	var username, role string
	if author, err := s.userRepo.FindByID(ctx, actor.ID); err == nil {
		username, role = author.Username, author.Role
	}
	return &postDto.CommentResponse{
		ID:        comment.ID,
		Text:      comment.Text,
		Author:    dto.Author(actor.ID, username, role),
		CreatedAt: comment.CreatedAt,
	}, nil
}

// DeletePost removes the post record. Media cleanup is best effort.
func (s *postService) DeletePost(ctx context.Context, actor authz.Actor, postID uuid.UUID) error {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return err
	}

	if !authz.Authorize(actor, authz.ActionDeletePost, authz.Owned(post.UserID)) {
		return fmt.Errorf("you can only delete your own post unless you are an admin: %w", apperror.ErrForbidden)
	}

	return s.remove(ctx, post)
}

// PurgeByUser deletes every post of userID and their comments on other posts.
func (s *postService) PurgeByUser(ctx context.Context, userID uuid.UUID) error {
	ids, err := s.postRepo.FindIDsByUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, id := range ids {
		post, err := s.postRepo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return err
		}
		if err := s.remove(ctx, post); err != nil {
			return err
		}
	}

	return s.postRepo.DeleteCommentsByUser(ctx, userID)
}

func (s *postService) remove(ctx context.Context, post *entity.Post) error {
	s.deleteBlob(ctx, post.FilePublicID)

	if err := s.postRepo.Delete(ctx, post.ID); err != nil {
		return err
	}
	if err := s.likes.Forget(ctx, []uuid.UUID{post.ID}, entity.LikeRefPost); err != nil {
		s.logger.Warn("failed to clear likes of deleted post", zap.Error(err), zap.String("post_id", post.ID.String()))
	}

	s.metrics.IncrementDeletion(entity.LikeRefPost, "hard")
	return nil
}

func (s *postService) deleteBlob(ctx context.Context, deletableID string) {
	if deletableID == "" || s.blobStore == nil {
		return
	}
	if err := s.blobStore.Delete(ctx, deletableID); err != nil {
		s.logger.Warn("failed to delete stored media",
			zap.Error(err),
			zap.String("deletable_id", deletableID),
		)
	}
}

func (s *postService) list(ctx context.Context, viewer authz.Actor, filter postRepo.PostFilter, pagination dto.Pagination) (*postDto.PostListResponse, error) {
	pagination = pagination.Normalize()

	posts, total, err := s.postRepo.List(ctx, filter, pagination.Offset(), pagination.Limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	summaries, err := s.likes.Summaries(ctx, viewer.ID, ids, entity.LikeRefPost)
	if err != nil {
		return nil, err
	}

	data := make([]postDto.PostResponse, 0, len(posts))
	for i := range posts {
		data = append(data, *s.mapToResponse(&posts[i], summaries[posts[i].ID]))
	}

	return &postDto.PostListResponse{
		Data: data,
		Meta: dto.NewPaginationMeta(pagination, total),
	}, nil
}

func (s *postService) findPost(ctx context.Context, postID uuid.UUID) (*entity.Post, error) {
	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("post not found: %w", apperror.ErrNotFound)
		}
		return nil, err
	}
	return post, nil
}

// findVisiblePost hides unapproved posts from everyone but their owner and admins.
func (s *postService) findVisiblePost(ctx context.Context, actor authz.Actor, postID uuid.UUID) (*entity.Post, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != entity.PostStatusApproved && !authz.Authorize(actor, authz.ActionViewUnapproved, authz.Owned(post.UserID)) {
		return nil, fmt.Errorf("post not found: %w", apperror.ErrNotFound)
	}
	return post, nil
}

func (s *postService) likeSummary(ctx context.Context, viewerID, postID uuid.UUID) (dto.LikeResponse, error) {
	summaries, err := s.likes.Summaries(ctx, viewerID, []uuid.UUID{postID}, entity.LikeRefPost)
	if err != nil {
		return dto.LikeResponse{}, err
	}
	return summaries[postID], nil
}

func (s *postService) mapToResponse(post *entity.Post, likes dto.LikeResponse) *postDto.PostResponse {
	comments := make([]postDto.CommentResponse, 0, len(post.Comments))
	for _, c := range post.Comments {
		comments = append(comments, postDto.CommentResponse{
			ID:        c.ID,
			Text:      c.Text,
			Author:    dto.Author(c.UserID, c.User.Username, c.User.Role),
			CreatedAt: c.CreatedAt,
		})
	}

	return &postDto.PostResponse{
		ID:          post.ID,
		Author:      dto.Author(post.UserID, post.User.Username, post.User.Role),
		FileURL:     post.FileURL,
		MediaType:   post.MediaType,
		Caption:     post.Caption,
		Status:      post.Status,
		ModeratedBy: post.ModeratedBy,
		ModeratedAt: post.ModeratedAt,
		LikesCount:  likes.LikesCount,
		IsLiked:     likes.Liked,
		Comments:    comments,
		CreatedAt:   post.CreatedAt,
	}
}

func mediaTypeOf(contentType string) (string, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return entity.MediaTypeImage, nil
	case strings.HasPrefix(contentType, "video/"):
		return entity.MediaTypeVideo, nil
	}
	return "", fmt.Errorf("unsupported media type %q: %w", contentType, apperror.ErrInvalidInput)
}

func validStatus(status string) bool {
	return status == entity.PostStatusPending || status == entity.PostStatusApproved || status == entity.PostStatusRejected
}
