package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"biogy.com/biogyapi/internal/authz"
	"biogy.com/biogyapi/internal/entity"
	"biogy.com/biogyapi/internal/metrics"
	likeRepo "biogy.com/biogyapi/internal/modules/like/repository"
	likeService "biogy.com/biogyapi/internal/modules/like/service"
	notifRepo "biogy.com/biogyapi/internal/modules/notification/repository"
	notifService "biogy.com/biogyapi/internal/modules/notification/service"
	topicDto "biogy.com/biogyapi/internal/modules/topic/dto"
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

type fixture struct {
	db      *gorm.DB
	svc     TopicService
	metrics *metrics.Metrics
	admin   authz.Actor
	student authz.Actor
	other   authz.Actor
}

func setup(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	logger := zap.NewNop()

	likes := likeService.NewLikeService(likeRepo.NewLikeRepository(db), nil, logger)
	notifications := notifService.NewNotificationService(notifRepo.NewNotificationRepository(db), nil, logger)
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), logger)
	svc := NewTopicService(topicRepo.NewTopicRepository(db), likes, notifications, nil, nil, m, logger)

	admin := testutil.CreateUser(t, db, "admin", entity.RoleAdmin)
	student := testutil.CreateUser(t, db, "student", entity.RoleStudent)
	other := testutil.CreateUser(t, db, "other", entity.RoleStudent)

	return &fixture{
		db:      db,
		svc:     svc,
		metrics: m,
		admin:   authz.Actor{ID: admin.ID, Role: admin.Role},
		student: authz.Actor{ID: student.ID, Role: student.Role},
		other:   authz.Actor{ID: other.ID, Role: other.Role},
	}
}

func (f *fixture) createTopic(t *testing.T, actor authz.Actor, title string) *topicDto.TopicResponse {
	t.Helper()
	resp, err := f.svc.CreateTopic(context.Background(), actor, topicDto.CreateTopicRequest{
		Title:   title,
		Content: "What is the role of chlorophyll?",
		Tags:    []string{"Botany", "botany ", "cells"},
	})
	require.NoError(t, err)
	return resp
}

func TestCreateTopic_CreatesExactlyOneRoot(t *testing.T) {
	f := setup(t)
	topic := f.createTopic(t, f.student, "  Photosynthesis  ")

	assert.Equal(t, "Photosynthesis", topic.Title)
	assert.Equal(t, entity.CategoryGeneral, topic.Category)
	assert.Equal(t, []string{"botany", "cells"}, topic.Tags)
	assert.Equal(t, int64(1), topic.DiscussionCount)
	assert.Equal(t, "student", topic.Author.Username)

	var roots []entity.Discussion
	require.NoError(t, f.db.Where("topic_id = ? AND parent_id IS NULL", topic.ID).Find(&roots).Error)
	require.Len(t, roots, 1)
	assert.Equal(t, topic.Content, roots[0].Content)
	assert.Equal(t, f.student.ID, roots[0].UserID)

	assert.Equal(t, float64(1), promtestutil.ToFloat64(f.metrics.TopicsCreatedTotal))
}

func TestCreateTopic_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := []topicDto.CreateTopicRequest{
		{Title: "   ", Content: "body"},
		{Title: "title", Content: ""},
		{Title: strings.Repeat("t", entity.MaxTitleLength+1), Content: "body"},
		{Title: "title", Content: "body", Category: "gossip"},
	}
	for _, req := range cases {
		_, err := f.svc.CreateTopic(ctx, f.student, req)
		assert.True(t, errors.Is(err, apperror.ErrInvalidInput), "request %+v", req)
	}

	_, err := f.svc.CreateTopic(ctx, authz.Actor{}, topicDto.CreateTopicRequest{Title: "t", Content: "c"})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	var count int64
	require.NoError(t, f.db.Model(&entity.Topic{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetTopic_CountsOnlyAuthenticatedViews(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic := f.createTopic(t, f.student, "Mitosis")

	for i := 0; i < 3; i++ {
		resp, err := f.svc.GetTopic(ctx, authz.Actor{}, topic.ID)
		require.NoError(t, err)
		assert.Zero(t, resp.Views)
	}

	resp, err := f.svc.GetTopic(ctx, f.other, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Views)

	_, err = f.svc.GetTopic(ctx, f.other, uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestUpdateTopic_FlagsIgnoredForNonAdmin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic := f.createTopic(t, f.student, "Genetics")

	yes := true
	title := "Genetics 101"
	resp, err := f.svc.UpdateTopic(ctx, f.student, topic.ID, topicDto.UpdateTopicRequest{
		Title:    &title,
		IsSticky: &yes,
		IsClosed: &yes,
	})
	require.NoError(t, err)
	assert.Equal(t, "Genetics 101", resp.Title)
	assert.False(t, resp.IsSticky)
	assert.False(t, resp.IsClosed)

	resp, err = f.svc.UpdateTopic(ctx, f.admin, topic.ID, topicDto.UpdateTopicRequest{IsSticky: &yes})
	require.NoError(t, err)
	assert.True(t, resp.IsSticky)

	_, err = f.svc.UpdateTopic(ctx, f.other, topic.ID, topicDto.UpdateTopicRequest{Title: &title})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestUpdateTopic_ContentMirrorsRoot(t *testing.T) {
	f := setup(t)
	topic := f.createTopic(t, f.student, "Enzymes")

	content := "Enzymes lower activation energy."
	_, err := f.svc.UpdateTopic(context.Background(), f.student, topic.ID, topicDto.UpdateTopicRequest{Content: &content})
	require.NoError(t, err)

	var root entity.Discussion
	require.NoError(t, f.db.Where("topic_id = ? AND parent_id IS NULL", topic.ID).First(&root).Error)
	assert.Equal(t, content, root.Content)
}

func TestUpdateTopic_KeepsDeletedRootTombstoned(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic := f.createTopic(t, f.student, "Meiosis")

	require.NoError(t, f.db.Model(&entity.Discussion{}).
		Where("topic_id = ? AND parent_id IS NULL", topic.ID).
		Updates(map[string]interface{}{"is_deleted": true, "content": entity.DeletedContent}).Error)

	content := "Brand new body"
	resp, err := f.svc.UpdateTopic(ctx, f.student, topic.ID, topicDto.UpdateTopicRequest{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, content, resp.Content)

	var root entity.Discussion
	require.NoError(t, f.db.Where("topic_id = ? AND parent_id IS NULL", topic.ID).First(&root).Error)
	assert.True(t, root.IsDeleted)
	assert.Equal(t, entity.DeletedContent, root.Content)
}

func TestListTopics_SearchMatchesWildcardsLiterally(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.createTopic(t, f.student, "Intro")
	f.createTopic(t, f.student, "Cell_Biology")
	f.createTopic(t, f.student, "Growth 100% guaranteed")
	f.createTopic(t, f.student, `Path a\b`)

	cases := map[string]string{
		"_":      "Cell_Biology",
		"%":      "Growth 100% guaranteed",
		`\`:      `Path a\b`,
		"L_BIO":  "Cell_Biology",
		"0% GUA": "Growth 100% guaranteed",
	}
	for search, want := range cases {
		list, err := f.svc.ListTopics(ctx, authz.Actor{}, topicDto.TopicFilter{Search: search})
		require.NoError(t, err)
		require.Len(t, list.Data, 1, "search %q", search)
		assert.Equal(t, want, list.Data[0].Title)
		assert.Equal(t, int64(1), list.Meta.TotalItems)
	}
}

func TestListTopics_StickyFirstAndFiltered(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.createTopic(t, f.student, "Cell membranes")
	f.createTopic(t, f.student, "Protein folding")

	yes := true
	_, err := f.svc.UpdateTopic(ctx, f.admin, first.ID, topicDto.UpdateTopicRequest{IsSticky: &yes})
	require.NoError(t, err)

	list, err := f.svc.ListTopics(ctx, authz.Actor{}, topicDto.TopicFilter{})
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	assert.Equal(t, first.ID, list.Data[0].ID)
	assert.Equal(t, int64(2), list.Meta.TotalItems)

	list, err = f.svc.ListTopics(ctx, authz.Actor{}, topicDto.TopicFilter{Search: "PROTEIN"})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Protein folding", list.Data[0].Title)

	// Without a search index, search falls back to the title match.
	found, err := f.svc.SearchTopics(ctx, authz.Actor{}, topicDto.SearchQuery{Query: "membranes"})
	require.NoError(t, err)
	require.Len(t, found.Data, 1)
	assert.Equal(t, first.ID, found.Data[0].ID)
}

func TestToggleLike_NotifiesOwner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic := f.createTopic(t, f.student, "Evolution")

	resp, err := f.svc.ToggleLike(ctx, f.other, topic.ID)
	require.NoError(t, err)
	assert.True(t, resp.Liked)
	assert.Equal(t, int64(1), resp.LikesCount)

	got, err := f.svc.GetTopic(ctx, f.other, topic.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLiked)
	assert.Equal(t, int64(1), got.LikesCount)

	var notifications int64
	require.NoError(t, f.db.Model(&entity.Notification{}).Where("user_id = ? AND type = ?", f.student.ID, entity.NotificationLike).Count(&notifications).Error)
	assert.Equal(t, int64(1), notifications)

	_, err = f.svc.ToggleLike(ctx, authz.Actor{}, topic.ID)
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))
}

func TestDeleteTopic_RemovesThreadAndLikes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	topic := f.createTopic(t, f.student, "Ecology")

	_, err := f.svc.ToggleLike(ctx, f.other, topic.ID)
	require.NoError(t, err)

	err = f.svc.DeleteTopic(ctx, f.other, topic.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	require.NoError(t, f.svc.DeleteTopic(ctx, f.admin, topic.ID))

	var discussions, likes int64
	require.NoError(t, f.db.Model(&entity.Discussion{}).Where("topic_id = ?", topic.ID).Count(&discussions).Error)
	require.NoError(t, f.db.Model(&entity.Like{}).Where("reference_id = ?", topic.ID).Count(&likes).Error)
	assert.Zero(t, discussions)
	assert.Zero(t, likes)

	_, err = f.svc.GetTopic(ctx, f.student, topic.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestPurgeByUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.createTopic(t, f.student, "One")
	f.createTopic(t, f.student, "Two")
	kept := f.createTopic(t, f.other, "Three")

	require.NoError(t, f.svc.PurgeByUser(ctx, f.student.ID))

	var ids []uuid.UUID
	require.NoError(t, f.db.Model(&entity.Topic{}).Pluck("id", &ids).Error)
	assert.Equal(t, []uuid.UUID{kept.ID}, ids)
}
