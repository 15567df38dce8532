package service

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"biogy.com/biogyapi/internal/entity"
	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

const topicsIndex = "topics"

// MeiliSearchService keeps the topic index in step with the database. The
// database stays the source of truth; callers treat index failures as
// non-fatal.
type MeiliSearchService interface {
	IndexTopic(topic *entity.Topic) error
	DeleteTopic(id uuid.UUID) error
	// SearchTopics returns matching topic ids in relevance order.
	SearchTopics(query string, offset, limit int) ([]uuid.UUID, int64, error)
}

type meiliSearchService struct {
	client    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
}

func NewMeiliSearchService(client meilisearch.ServiceManager, logger *zap.Logger) MeiliSearchService {
	s := &meiliSearchService{
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}
	s.initIndexes()
	return s
}

func (s *meiliSearchService) initIndexes() {
	filterable := []interface{}{"category", "tags"}
	if _, err := s.client.Index(topicsIndex).UpdateFilterableAttributes(&filterable); err != nil {
		s.logger.Warn("failed to update topics filterable attributes", zap.Error(err))
	}

	sortable := []string{"last_activity", "views"}
	if _, err := s.client.Index(topicsIndex).UpdateSortableAttributes(&sortable); err != nil {
		s.logger.Warn("failed to update topics sortable attributes", zap.Error(err))
	}

	s.logger.Info("meilisearch indexes initialized")
}

type meiliTopicDoc struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	Category     string   `json:"category"`
	Tags         []string `json:"tags"`
	Views        int      `json:"views"`
	Username     string   `json:"username"`
	LastActivity int64    `json:"last_activity"`
	CreatedAt    int64    `json:"created_at"`
}

// CleanContent strips markup so only readable text reaches the index.
func (s *meiliSearchService) CleanContent(content string) string {
	// Replace block tags with spaces to prevent text merging
	content = strings.ReplaceAll(content, "</p>", " ")
	content = strings.ReplaceAll(content, "<br>", " ")
	content = strings.ReplaceAll(content, "</div>", " ")

	cleanText := html.UnescapeString(s.sanitizer.Sanitize(content))
	return strings.Join(strings.Fields(cleanText), " ")
}

func (s *meiliSearchService) IndexTopic(topic *entity.Topic) error {
	doc := meiliTopicDoc{
		ID:           topic.ID.String(),
		Title:        s.CleanContent(topic.Title),
		Content:      s.CleanContent(topic.Content),
		Category:     topic.Category,
		Tags:         []string(topic.Tags),
		Views:        topic.Views,
		Username:     topic.User.Username,
		LastActivity: topic.LastActivity.Unix(),
		CreatedAt:    topic.CreatedAt.Unix(),
	}

	primaryKey := "id"
	task, err := s.client.Index(topicsIndex).AddDocuments([]meiliTopicDoc{doc}, &primaryKey)
	if err != nil {
		return err
	}
	s.logger.Debug("indexed topic", zap.String("topic_id", doc.ID), zap.Int64("task_uid", task.TaskUID))
	return nil
}

func (s *meiliSearchService) DeleteTopic(id uuid.UUID) error {
	_, err := s.client.Index(topicsIndex).DeleteDocument(id.String())
	return err
}

func (s *meiliSearchService) SearchTopics(query string, offset, limit int) ([]uuid.UUID, int64, error) {
	resp, err := s.client.Index(topicsIndex).Search(query, &meilisearch.SearchRequest{
		Offset:               int64(offset),
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, 0, err
	}

	ids, err := decodeHitIDs(resp.Hits)
	if err != nil {
		return nil, 0, err
	}
	return ids, resp.EstimatedTotalHits, nil
}

func decodeHitIDs(hits interface{}) ([]uuid.UUID, error) {
	raw, err := json.Marshal(hits)
	if err != nil {
		return nil, fmt.Errorf("failed to read search hits: %w", err)
	}

	var docs []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode search hits: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
