package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	likeRepo "biogy.com/biogyapi/internal/modules/like/repository"
	"biogy.com/biogyapi/pkg/dto"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const countTTL = 24 * time.Hour

// LikeService is the engagement ledger shared by posts, topics, discussions
// and the follow graph.
type LikeService interface {
	Toggle(ctx context.Context, userID, refID uuid.UUID, refType string) (*dto.LikeResponse, error)
	Count(ctx context.Context, refID uuid.UUID, refType string) (int64, error)
	IsLiked(ctx context.Context, userID, refID uuid.UUID, refType string) (bool, error)
	Summaries(ctx context.Context, userID uuid.UUID, refIDs []uuid.UUID, refType string) (map[uuid.UUID]dto.LikeResponse, error)
	Members(ctx context.Context, refID uuid.UUID, refType string, offset, limit int) ([]uuid.UUID, int64, error)
	References(ctx context.Context, userID uuid.UUID, refType string, offset, limit int) ([]uuid.UUID, int64, error)
	Forget(ctx context.Context, refIDs []uuid.UUID, refType string) error
	ForgetUser(ctx context.Context, userID uuid.UUID) error
}

type likeService struct {
	repo        likeRepo.LikeRepository
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewLikeService(repo likeRepo.LikeRepository, redisClient *redis.Client, logger *zap.Logger) LikeService {
	return &likeService{
		repo:        repo,
		redisClient: redisClient,
		logger:      logger,
	}
}

func countKey(refType string, refID uuid.UUID) string {
	return fmt.Sprintf("likes:count:%s:%s", refType, refID.String())
}

func (s *likeService) Toggle(ctx context.Context, userID, refID uuid.UUID, refType string) (*dto.LikeResponse, error) {
	liked, err := s.repo.Toggle(ctx, userID, refID, refType)
	if err != nil {
		return nil, err
	}

	// The database is the source of truth; the cache is refreshed from it.
	count, err := s.repo.Count(ctx, refID, refType)
	if err != nil {
		return nil, err
	}
	s.cacheCount(ctx, refType, refID, count)

	return &dto.LikeResponse{Liked: liked, LikesCount: count}, nil
}

func (s *likeService) Count(ctx context.Context, refID uuid.UUID, refType string) (int64, error) {
	if s.redisClient != nil {
		val, err := s.redisClient.Get(ctx, countKey(refType, refID)).Result()
		if err == nil {
			if count, convErr := strconv.ParseInt(val, 10, 64); convErr == nil {
				return count, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn("like count cache read failed", zap.Error(err), zap.String("ref_id", refID.String()))
		}
	}

	count, err := s.repo.Count(ctx, refID, refType)
	if err != nil {
		return 0, err
	}
	s.cacheCount(ctx, refType, refID, count)
	return count, nil
}

func (s *likeService) IsLiked(ctx context.Context, userID, refID uuid.UUID, refType string) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	return s.repo.IsMember(ctx, userID, refID, refType)
}

// Summaries returns count and membership for each reference in one pass.
func (s *likeService) Summaries(ctx context.Context, userID uuid.UUID, refIDs []uuid.UUID, refType string) (map[uuid.UUID]dto.LikeResponse, error) {
	counts, err := s.repo.CountMany(ctx, refIDs, refType)
	if err != nil {
		return nil, err
	}
	liked, err := s.repo.MemberIDs(ctx, userID, refIDs, refType)
	if err != nil {
		return nil, err
	}

	summaries := make(map[uuid.UUID]dto.LikeResponse, len(refIDs))
	for _, id := range refIDs {
		summaries[id] = dto.LikeResponse{Liked: liked[id], LikesCount: counts[id]}
	}
	return summaries, nil
}

func (s *likeService) Members(ctx context.Context, refID uuid.UUID, refType string, offset, limit int) ([]uuid.UUID, int64, error) {
	return s.repo.Members(ctx, refID, refType, offset, limit)
}

func (s *likeService) References(ctx context.Context, userID uuid.UUID, refType string, offset, limit int) ([]uuid.UUID, int64, error) {
	return s.repo.References(ctx, userID, refType, offset, limit)
}

// Forget drops the engagement sets of deleted references.
func (s *likeService) Forget(ctx context.Context, refIDs []uuid.UUID, refType string) error {
	if err := s.repo.DeleteByReferences(ctx, refIDs, refType); err != nil {
		return err
	}
	if s.redisClient != nil && len(refIDs) > 0 {
		keys := make([]string, 0, len(refIDs))
		for _, id := range refIDs {
			keys = append(keys, countKey(refType, id))
		}
		if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
			s.logger.Warn("like count cache eviction failed", zap.Error(err))
		}
	}
	return nil
}

// ForgetUser removes every like and follow edge of a deleted user and evicts
// the cached counts of every set that lost a member.
func (s *likeService) ForgetUser(ctx context.Context, userID uuid.UUID) error {
	removed, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	if s.redisClient == nil || len(removed) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(removed))
	keys := make([]string, 0, len(removed))
	for _, l := range removed {
		k := countKey(l.ReferenceType, l.ReferenceID)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("like count cache eviction failed", zap.Error(err), zap.String("user_id", userID.String()))
	}
	return nil
}

func (s *likeService) cacheCount(ctx context.Context, refType string, refID uuid.UUID, count int64) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Set(ctx, countKey(refType, refID), count, countTTL).Err(); err != nil {
		s.logger.Warn("like count cache write failed", zap.Error(err), zap.String("ref_id", refID.String()))
	}
}
