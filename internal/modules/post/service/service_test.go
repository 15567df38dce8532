package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"biogy.com/biogyapi/internal/authz"
	"biogy.com/biogyapi/internal/entity"
	"biogy.com/biogyapi/internal/metrics"
	likeRepo "biogy.com/biogyapi/internal/modules/like/repository"
	likeService "biogy.com/biogyapi/internal/modules/like/service"
	notifRepo "biogy.com/biogyapi/internal/modules/notification/repository"
	notifService "biogy.com/biogyapi/internal/modules/notification/service"
	postDto "biogy.com/biogyapi/internal/modules/post/dto"
	postRepo "biogy.com/biogyapi/internal/modules/post/repository"
	userRepo "biogy.com/biogyapi/internal/modules/user/repository"
	"biogy.com/biogyapi/internal/testutil"
	"biogy.com/biogyapi/pkg/apperror"
	"biogy.com/biogyapi/pkg/dto"
	"biogy.com/biogyapi/pkg/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MockBlobStore struct {
	StoreFunc  func(ctx context.Context, r io.Reader, opts storage.StoreOptions) (*storage.StoredObject, error)
	DeleteFunc func(ctx context.Context, deletableID string) error
}

func (m *MockBlobStore) Store(ctx context.Context, r io.Reader, opts storage.StoreOptions) (*storage.StoredObject, error) {
	if m.StoreFunc != nil {
		return m.StoreFunc(ctx, r, opts)
	}
	return &storage.StoredObject{
		URL:         "https://cdn.example.com/" + opts.FileName,
		DeletableID: storage.EncodeDeletableID(opts.ResourceType, opts.FileName),
	}, nil
}

func (m *MockBlobStore) Delete(ctx context.Context, deletableID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, deletableID)
	}
	return nil
}

type fixture struct {
	db      *gorm.DB
	svc     PostService
	blobs   *MockBlobStore
	admin   authz.Actor
	student authz.Actor
	other   authz.Actor
}

func setup(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	logger := zap.NewNop()
	blobs := &MockBlobStore{}

	likes := likeService.NewLikeService(likeRepo.NewLikeRepository(db), nil, logger)
	notifications := notifService.NewNotificationService(notifRepo.NewNotificationRepository(db), nil, logger)
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), logger)
	svc := NewPostService(postRepo.NewPostRepository(db), userRepo.NewUserRepository(db), likes, notifications, blobs, "biogy", nil, m, logger)

	admin := testutil.CreateUser(t, db, "admin", entity.RoleAdmin)
	student := testutil.CreateUser(t, db, "student", entity.RoleStudent)
	other := testutil.CreateUser(t, db, "other", entity.RoleStudent)

	return &fixture{
		db:      db,
		svc:     svc,
		blobs:   blobs,
		admin:   authz.Actor{ID: admin.ID, Role: admin.Role},
		student: authz.Actor{ID: student.ID, Role: student.Role},
		other:   authz.Actor{ID: other.ID, Role: other.Role},
	}
}

func image(name string) postDto.UploadFile {
	return postDto.UploadFile{Reader: strings.NewReader("bytes"), FileName: name, ContentType: "image/png"}
}

func (f *fixture) createPost(t *testing.T, actor authz.Actor, caption string) *postDto.PostResponse {
	t.Helper()
	resp, err := f.svc.CreatePost(context.Background(), actor, image("photo.png"), caption)
	require.NoError(t, err)
	return resp
}

func TestCreatePost_AlwaysPending(t *testing.T) {
	f := setup(t)

	for _, actor := range []authz.Actor{f.admin, f.student} {
		resp := f.createPost(t, actor, "leaf cells")
		assert.Equal(t, entity.PostStatusPending, resp.Status)
		assert.Nil(t, resp.ModeratedBy)
		assert.Equal(t, entity.MediaTypeImage, resp.MediaType)
		assert.Equal(t, "https://cdn.example.com/photo.png", resp.FileURL)
	}
}

func TestCreatePost_StoreFailureAborts(t *testing.T) {
	f := setup(t)
	f.blobs.StoreFunc = func(ctx context.Context, r io.Reader, opts storage.StoreOptions) (*storage.StoredObject, error) {
		return nil, errors.New("cloudinary down")
	}

	_, err := f.svc.CreatePost(context.Background(), f.student, image("photo.png"), "")
	assert.True(t, errors.Is(err, apperror.ErrDependency))

	var count int64
	require.NoError(t, f.db.Model(&entity.Post{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreatePost_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreatePost(ctx, f.student, image("a.png"), strings.Repeat("x", entity.MaxCaptionLength+1))
	assert.True(t, errors.Is(err, apperror.ErrInvalidInput))

	_, err = f.svc.CreatePost(ctx, f.student, postDto.UploadFile{Reader: strings.NewReader("x"), FileName: "a.pdf", ContentType: "application/pdf"}, "")
	assert.True(t, errors.Is(err, apperror.ErrInvalidInput))

	_, err = f.svc.CreatePost(ctx, authz.Actor{}, image("a.png"), "")
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

func TestListApproved_HidesUnapproved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	approved := f.createPost(t, f.student, "approved")
	rejected := f.createPost(t, f.student, "rejected")
	f.createPost(t, f.student, "pending")

	_, err := f.svc.TransitionStatus(ctx, f.admin, approved.ID, entity.PostStatusApproved)
	require.NoError(t, err)
	_, err = f.svc.TransitionStatus(ctx, f.admin, rejected.ID, entity.PostStatusRejected)
	require.NoError(t, err)

	feed, err := f.svc.ListApproved(ctx, authz.Actor{}, dto.Pagination{})
	require.NoError(t, err)
	require.Len(t, feed.Data, 1)
	assert.Equal(t, approved.ID, feed.Data[0].ID)
	assert.Equal(t, int64(1), feed.Meta.TotalItems)

	pending, err := f.svc.ListForModeration(ctx, f.admin, entity.PostStatusPending, dto.Pagination{})
	require.NoError(t, err)
	assert.Len(t, pending.Data, 1)

	all, err := f.svc.ListForModeration(ctx, f.admin, "", dto.Pagination{})
	require.NoError(t, err)
	assert.Len(t, all.Data, 3)

	_, err = f.svc.ListForModeration(ctx, f.student, "", dto.Pagination{})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestTransitionStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post := f.createPost(t, f.student, "")

	_, err := f.svc.TransitionStatus(ctx, f.student, post.ID, entity.PostStatusApproved)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	resp, err := f.svc.TransitionStatus(ctx, f.admin, post.ID, entity.PostStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, entity.PostStatusApproved, resp.Status)
	require.NotNil(t, resp.ModeratedBy)
	assert.Equal(t, f.admin.ID, *resp.ModeratedBy)
	assert.NotNil(t, resp.ModeratedAt)

	_, err = f.svc.TransitionStatus(ctx, f.admin, post.ID, entity.PostStatusApproved)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	_, err = f.svc.TransitionStatus(ctx, f.admin, uuid.New(), entity.PostStatusRejected)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = f.svc.TransitionStatus(ctx, f.admin, post.ID, entity.PostStatusPending)
	assert.True(t, errors.Is(err, apperror.ErrInvalidInput))

	var notifications int64
	require.NoError(t, f.db.Model(&entity.Notification{}).Where("user_id = ? AND type = ?", f.student.ID, entity.NotificationModeration).Count(&notifications).Error)
	assert.Equal(t, int64(1), notifications)
}

func TestToggleLike(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post := f.createPost(t, f.student, "")

	// Pending posts are invisible to other students.
	_, err := f.svc.ToggleLike(ctx, f.other, post.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = f.svc.TransitionStatus(ctx, f.admin, post.ID, entity.PostStatusApproved)
	require.NoError(t, err)

	res, err := f.svc.ToggleLike(ctx, f.other, post.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, int64(1), res.LikesCount)

	feed, err := f.svc.ListApproved(ctx, f.other, dto.Pagination{})
	require.NoError(t, err)
	require.Len(t, feed.Data, 1)
	assert.True(t, feed.Data[0].IsLiked)
	assert.Equal(t, int64(1), feed.Data[0].LikesCount)

	res, err = f.svc.ToggleLike(ctx, f.other, post.ID)
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Zero(t, res.LikesCount)
}

func TestAddComment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post := f.createPost(t, f.student, "")
	_, err := f.svc.TransitionStatus(ctx, f.admin, post.ID, entity.PostStatusApproved)
	require.NoError(t, err)

	_, err = f.svc.AddComment(ctx, f.other, post.ID, "   ")
	assert.True(t, errors.Is(err, apperror.ErrInvalidInput))

	first, err := f.svc.AddComment(ctx, f.other, post.ID, "nice mitochondria")
	require.NoError(t, err)
	assert.Equal(t, "nice mitochondria", first.Text)
	assert.Equal(t, "other", first.Author.Username)

	second, err := f.svc.AddComment(ctx, f.student, post.ID, "thanks")
	require.NoError(t, err)
	assert.Equal(t, "thanks", second.Text)
	assert.NotEqual(t, first.ID, second.ID)

	feed, err := f.svc.ListApproved(ctx, authz.Actor{}, dto.Pagination{})
	require.NoError(t, err)
	require.Len(t, feed.Data[0].Comments, 2)
	assert.Equal(t, "other", feed.Data[0].Comments[0].Author.Username)
	assert.Equal(t, "student", feed.Data[0].Comments[1].Author.Username)
}

func TestDeletePost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post := f.createPost(t, f.student, "")

	assert.True(t, errors.Is(f.svc.DeletePost(ctx, f.other, post.ID), apperror.ErrForbidden))

	var deleted []string
	f.blobs.DeleteFunc = func(ctx context.Context, deletableID string) error {
		deleted = append(deleted, deletableID)
		return errors.New("cloudinary unavailable")
	}

	// Blob cleanup failure is not surfaced.
	require.NoError(t, f.svc.DeletePost(ctx, f.student, post.ID))
	assert.Equal(t, []string{"image:photo.png"}, deleted)

	assert.True(t, errors.Is(f.svc.DeletePost(ctx, f.admin, post.ID), apperror.ErrNotFound))
}

func TestDeletePost_AdminCanDeleteAnyPost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	post := f.createPost(t, f.student, "")

	_, err := f.svc.AddComment(ctx, f.student, post.ID, "first")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeletePost(ctx, f.admin, post.ID))

	var comments int64
	require.NoError(t, f.db.Model(&entity.PostComment{}).Where("post_id = ?", post.ID).Count(&comments).Error)
	assert.Zero(t, comments)
}

func TestListByUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	approved := f.createPost(t, f.student, "")
	f.createPost(t, f.student, "")
	_, err := f.svc.TransitionStatus(ctx, f.admin, approved.ID, entity.PostStatusApproved)
	require.NoError(t, err)

	own, err := f.svc.ListByUser(ctx, f.student, "student", dto.Pagination{})
	require.NoError(t, err)
	assert.Len(t, own.Data, 2)

	public, err := f.svc.ListByUser(ctx, f.other, "student", dto.Pagination{})
	require.NoError(t, err)
	assert.Len(t, public.Data, 1)

	_, err = f.svc.ListByUser(ctx, f.other, "ghost", dto.Pagination{})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestPurgeByUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mine := f.createPost(t, f.student, "")
	theirs := f.createPost(t, f.other, "")
	_, err := f.svc.TransitionStatus(ctx, f.admin, theirs.ID, entity.PostStatusApproved)
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, f.student, theirs.ID, "hello")
	require.NoError(t, err)

	require.NoError(t, f.svc.PurgeByUser(ctx, f.student.ID))

	var posts []entity.Post
	require.NoError(t, f.db.Find(&posts).Error)
	require.Len(t, posts, 1)
	assert.Equal(t, theirs.ID, posts[0].ID)
	assert.NotEqual(t, mine.ID, posts[0].ID)

	var comments int64
	require.NoError(t, f.db.Model(&entity.PostComment{}).Count(&comments).Error)
	assert.Zero(t, comments)
}
