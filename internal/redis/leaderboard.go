package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/housekeeper/internal/domain"
	"github.com/redis/go-redis/v9"
)

// LeaderboardStore keeps per-mode rankings in Redis sorted sets
type LeaderboardStore struct {
	client *redis.Client
	prefix string
}

// NewLeaderboardStore creates a leaderboard store; prefix namespaces every key
func NewLeaderboardStore(client *redis.Client, prefix string) *LeaderboardStore {
	return &LeaderboardStore{
		client: client,
		prefix: prefix,
	}
}

func (s *LeaderboardStore) key(key string) string {
	return s.prefix + key
}

// Upsert sets a user's ranking metric under key, replacing any earlier value
func (s *LeaderboardStore) Upsert(ctx context.Context, key string, userID int64, performance float64) error {
	err := s.client.ZAdd(ctx, s.key(key), redis.Z{
		Score:  performance,
		Member: strconv.FormatInt(userID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}
	return nil
}

// Get returns a user's entry under key
func (s *LeaderboardStore) Get(ctx context.Context, key string, userID int64) (*domain.LeaderboardEntry, error) {
	score, err := s.client.ZScore(ctx, s.key(key), strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting %s entry: %w", key, err)
	}
	return &domain.LeaderboardEntry{
		Key:         key,
		UserID:      userID,
		Performance: score,
	}, nil
}
