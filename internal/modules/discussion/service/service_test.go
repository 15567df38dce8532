package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"biogy.com/biogyapi/internal/authz"
	"biogy.com/biogyapi/internal/entity"
	"biogy.com/biogyapi/internal/metrics"
	discussionRepo "biogy.com/biogyapi/internal/modules/discussion/repository"
	likeRepo "biogy.com/biogyapi/internal/modules/like/repository"
	likeService "biogy.com/biogyapi/internal/modules/like/service"
	notifRepo "biogy.com/biogyapi/internal/modules/notification/repository"
	notifService "biogy.com/biogyapi/internal/modules/notification/service"
	topicRepo "biogy.com/biogyapi/internal/modules/topic/repository"
	"biogy.com/biogyapi/internal/testutil"
	"biogy.com/biogyapi/pkg/apperror"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MockTopicStore struct {
	FindByIDFunc func(ctx context.Context, id uuid.UUID) (*entity.Topic, error)
	TouchFunc    func(ctx context.Context, id uuid.UUID, at time.Time) error
}

func (m *MockTopicStore) FindByID(ctx context.Context, id uuid.UUID) (*entity.Topic, error) {
	return m.FindByIDFunc(ctx, id)
}

func (m *MockTopicStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.TouchFunc(ctx, id, at)
}

type fixture struct {
	db      *gorm.DB
	topics  topicRepo.TopicRepository
	svc     DiscussionService
	metrics *metrics.Metrics
	admin   authz.Actor
	student authz.Actor
	other   authz.Actor
}

func setup(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	logger := zap.NewNop()

	topics := topicRepo.NewTopicRepository(db)
	likes := likeService.NewLikeService(likeRepo.NewLikeRepository(db), nil, logger)
	notifications := notifService.NewNotificationService(notifRepo.NewNotificationRepository(db), nil, logger)
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), logger)
	svc := NewDiscussionService(discussionRepo.NewDiscussionRepository(db), topics, likes, notifications, nil, m, logger)

	admin := testutil.CreateUser(t, db, "admin", entity.RoleAdmin)
	student := testutil.CreateUser(t, db, "student", entity.RoleStudent)
	other := testutil.CreateUser(t, db, "other", entity.RoleStudent)

	return &fixture{
		db:      db,
		topics:  topics,
		svc:     svc,
		metrics: m,
		admin:   authz.Actor{ID: admin.ID, Role: admin.Role},
		student: authz.Actor{ID: student.ID, Role: student.Role},
		other:   authz.Actor{ID: other.ID, Role: other.Role},
	}
}

// createTopic stores a topic owned by actor and returns it with its root.
func (f *fixture) createTopic(t *testing.T, actor authz.Actor) (*entity.Topic, *entity.Discussion) {
	t.Helper()
	topic := &entity.Topic{
		UserID:       actor.ID,
		Title:        "Photosynthesis",
		Content:      "How does light become sugar?",
		Category:     entity.CategoryQuestion,
		LastActivity: time.Now().Add(-time.Hour),
	}
	root := &entity.Discussion{UserID: actor.ID, Content: topic.Content}
	require.NoError(t, f.topics.CreateWithRoot(context.Background(), topic, root))
	return topic, root
}

func (f *fixture) notificationCount(t *testing.T, userID uuid.UUID, kind string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&entity.Notification{}).Where("user_id = ? AND type = ?", userID, kind).Count(&count).Error)
	return count
}

func TestCreateDiscussion_BumpsActivityAndCount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, root := f.createTopic(t, f.student)

	reply, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "  Chloroplasts.  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Chloroplasts.", reply.Content)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)
	assert.False(t, reply.IsRoot)
	assert.Equal(t, "other", reply.Author.Username)

	stored, err := f.topics.FindByID(ctx, topic.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, reply.CreatedAt, stored.LastActivity, time.Millisecond)
	assert.True(t, stored.LastActivity.After(topic.LastActivity))

	stats, err := f.topics.Stats(ctx, []uuid.UUID{topic.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[topic.ID].Count)

	assert.Equal(t, int64(1), f.notificationCount(t, f.student.ID, entity.NotificationReplyTopic))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(f.metrics.DiscussionsCreatedTotal))
}

func TestCreateDiscussion_NestedReplyNotifiesParentAuthor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, _ := f.createTopic(t, f.student)

	first, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "first", nil)
	require.NoError(t, err)

	_, err = f.svc.CreateDiscussion(ctx, f.admin, topic.ID, "nested", &first.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.notificationCount(t, f.other.ID, entity.NotificationReplyDiscussion))
	assert.Equal(t, int64(1), f.notificationCount(t, f.student.ID, entity.NotificationReplyTopic))
}

func TestCreateDiscussion_ClosedTopicRejectsReplies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, root := f.createTopic(t, f.student)

	reply, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "before closing", nil)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&entity.Topic{}).Where("id = ?", topic.ID).Update("is_closed", true).Error)

	for _, actor := range []authz.Actor{f.other, f.admin} {
		_, err = f.svc.CreateDiscussion(ctx, actor, topic.ID, "after closing", nil)
		assert.True(t, errors.Is(err, apperror.ErrForbidden))
	}

	// Reads, edits and likes still work.
	_, err = f.svc.GetThread(ctx, authz.Actor{}, topic.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateDiscussion(ctx, f.other, reply.ID, "edited")
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, f.other, root.ID)
	require.NoError(t, err)
}

func TestCreateDiscussion_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, _ := f.createTopic(t, f.student)
	otherTopic, otherRoot := f.createTopic(t, f.other)

	_, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "   ", nil)
	assert.True(t, errors.Is(err, apperror.ErrInvalidInput))

	_, err = f.svc.CreateDiscussion(ctx, f.other, topic.ID, "wrong thread", &otherRoot.ID)
	assert.True(t, errors.Is(err, apperror.ErrInvalidInput))

	missing := uuid.New()
	_, err = f.svc.CreateDiscussion(ctx, f.other, topic.ID, "orphan", &missing)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = f.svc.CreateDiscussion(ctx, f.other, uuid.New(), "nowhere", nil)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = f.svc.CreateDiscussion(ctx, authz.Actor{}, otherTopic.ID, "anon", nil)
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

func TestCreateDiscussion_TouchFailureKeepsReply(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, _ := f.createTopic(t, f.student)

	store := &MockTopicStore{
		FindByIDFunc: f.topics.FindByID,
		TouchFunc: func(ctx context.Context, id uuid.UUID, at time.Time) error {
			return errors.New("database is locked")
		},
	}
	logger := zap.NewNop()
	likes := likeService.NewLikeService(likeRepo.NewLikeRepository(f.db), nil, logger)
	notifications := notifService.NewNotificationService(notifRepo.NewNotificationRepository(f.db), nil, logger)
	svc := NewDiscussionService(discussionRepo.NewDiscussionRepository(f.db), store, likes, notifications, nil, nil, logger)

	reply, err := svc.CreateDiscussion(ctx, f.other, topic.ID, "still saved", nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, reply.ID)
}

func TestGetThread_RootFirstTree(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, root := f.createTopic(t, f.student)

	a, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "a", nil)
	require.NoError(t, err)
	_, err = f.svc.CreateDiscussion(ctx, f.student, topic.ID, "a.1", &a.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateDiscussion(ctx, f.admin, topic.ID, "b", nil)
	require.NoError(t, err)

	thread, err := f.svc.GetThread(ctx, authz.Actor{}, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, thread.Total)
	require.NotNil(t, thread.Root)
	assert.Equal(t, root.ID, thread.Root.ID)
	assert.True(t, thread.Root.IsRoot)
	assert.Equal(t, int64(2), thread.Root.ReplyCount)
	require.Len(t, thread.Root.Replies, 2)
	assert.Equal(t, "a", thread.Root.Replies[0].Content)
	assert.Equal(t, "b", thread.Root.Replies[1].Content)
	require.Len(t, thread.Root.Replies[0].Replies, 1)
	assert.Equal(t, "a.1", thread.Root.Replies[0].Replies[0].Content)

	got, err := f.svc.GetDiscussion(ctx, authz.Actor{}, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ReplyCount)

	_, err = f.svc.GetThread(ctx, authz.Actor{}, uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestUpdateDiscussion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, _ := f.createTopic(t, f.student)
	reply, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "draft", nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateDiscussion(ctx, f.student, reply.ID, "hijack")
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	updated, err := f.svc.UpdateDiscussion(ctx, f.other, reply.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Content)
	assert.True(t, updated.IsEdited)
	assert.NotNil(t, updated.EditedAt)

	_, err = f.svc.UpdateDiscussion(ctx, f.admin, reply.ID, "moderated")
	require.NoError(t, err)
}

func TestDeleteDiscussion_SoftVersusHard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, root := f.createTopic(t, f.student)

	parent, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "parent", nil)
	require.NoError(t, err)
	leaf, err := f.svc.CreateDiscussion(ctx, f.student, topic.ID, "leaf", &parent.ID)
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(ctx, f.other, leaf.ID)
	require.NoError(t, err)

	_, err = f.svc.DeleteDiscussion(ctx, f.student, parent.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	// A discussion with replies becomes a tombstone.
	mode, err := f.svc.DeleteDiscussion(ctx, f.other, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteModeSoft, mode)

	tombstone, err := f.svc.GetDiscussion(ctx, authz.Actor{}, parent.ID)
	require.NoError(t, err)
	assert.True(t, tombstone.IsDeleted)
	assert.Equal(t, entity.DeletedContent, tombstone.Content)

	_, err = f.svc.UpdateDiscussion(ctx, f.other, parent.ID, "revive")
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	// A leaf is removed along with its likes.
	mode, err = f.svc.DeleteDiscussion(ctx, f.student, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteModeHard, mode)

	_, err = f.svc.GetDiscussion(ctx, authz.Actor{}, leaf.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	var likes int64
	require.NoError(t, f.db.Model(&entity.Like{}).Where("reference_id = ?", leaf.ID).Count(&likes).Error)
	assert.Zero(t, likes)

	// The root is always kept.
	mode, err = f.svc.DeleteDiscussion(ctx, f.admin, root.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteModeSoft, mode)

	assert.Equal(t, float64(2), promtestutil.ToFloat64(f.metrics.DeletionsTotal.WithLabelValues(entity.LikeRefDiscussion, DeleteModeSoft)))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(f.metrics.DeletionsTotal.WithLabelValues(entity.LikeRefDiscussion, DeleteModeHard)))
}

func TestToggleLike_NotifiesAuthor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, _ := f.createTopic(t, f.student)
	reply, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "like me", nil)
	require.NoError(t, err)

	resp, err := f.svc.ToggleLike(ctx, f.student, reply.ID)
	require.NoError(t, err)
	assert.True(t, resp.Liked)
	assert.Equal(t, int64(1), f.notificationCount(t, f.other.ID, entity.NotificationLike))

	got, err := f.svc.GetDiscussion(ctx, f.student, reply.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLiked)
	assert.Equal(t, int64(1), got.LikesCount)

	resp, err = f.svc.ToggleLike(ctx, f.student, reply.ID)
	require.NoError(t, err)
	assert.False(t, resp.Liked)
	assert.Zero(t, resp.LikesCount)
}

func TestPurgeByUser_AppliesDeletionPolicy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic, _ := f.createTopic(t, f.student)

	withReply, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "answered", nil)
	require.NoError(t, err)
	_, err = f.svc.CreateDiscussion(ctx, f.student, topic.ID, "answer", &withReply.ID)
	require.NoError(t, err)
	leaf, err := f.svc.CreateDiscussion(ctx, f.other, topic.ID, "lonely", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.PurgeByUser(ctx, f.other.ID))

	soft, err := f.svc.GetDiscussion(ctx, authz.Actor{}, withReply.ID)
	require.NoError(t, err)
	assert.True(t, soft.IsDeleted)

	_, err = f.svc.GetDiscussion(ctx, authz.Actor{}, leaf.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
