package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edustream/groupchat-service/internal/cache"
)

// presenceService tracks online status and last-seen markers in Redis. With
// no Redis configured it degrades to reporting everyone offline.
type presenceService struct {
	cacheHelper *cache.CacheHelper
	logger      *slog.Logger
}

func NewPresenceService(redisClient *redis.Client, logger *slog.Logger) PresenceService {
	return &presenceService{
		cacheHelper: cache.NewCacheHelper(redisClient, cache.PresenceCacheConfig.Prefix),
		logger:      logger,
	}
}

func (s *presenceService) SetOnline(ctx context.Context, userID string) error {
	if err := s.cacheHelper.SetString(ctx, "online:"+userID, "1", cache.PresenceCacheConfig.TTL); err != nil {
		return err
	}
	return s.touchLastSeen(ctx, userID)
}

func (s *presenceService) SetOffline(ctx context.Context, userID string) error {
	if err := s.cacheHelper.Delete(ctx, "online:"+userID); err != nil {
		return err
	}
	return s.touchLastSeen(ctx, userID)
}

func (s *presenceService) IsOnline(ctx context.Context, userID string) (bool, error) {
	exists, err := s.cacheHelper.Exists(ctx, "online:"+userID)
	if err != nil {
		if err == cache.ErrCacheNotAvailable {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

func (s *presenceService) LastSeen(ctx context.Context, userID string) (*time.Time, error) {
	value, err := s.cacheHelper.GetString(ctx, "seen:"+userID)
	if err != nil {
		if err == cache.ErrCacheNotFound || err == cache.ErrCacheNotAvailable {
			return nil, nil
		}
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func (s *presenceService) touchLastSeen(ctx context.Context, userID string) error {
	return s.cacheHelper.SetString(ctx, "seen:"+userID, time.Now().UTC().Format(time.RFC3339), 30*24*time.Hour)
}
