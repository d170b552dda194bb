package store

import (
	"context"

	"fireflies-dealcloud-sync/internal/common/database"
)

// RedisSet persists processed transcript ids in a Redis set, surviving
// restarts and shared across replicas.
type RedisSet struct {
	client *database.RedisClient
	key    string
}

func NewRedisSet(client *database.RedisClient, key string) *RedisSet {
	return &RedisSet{client: client, key: key}
}

func (s *RedisSet) Contains(ctx context.Context, transcriptID string) (bool, error) {
	return s.client.SIsMember(ctx, s.key, transcriptID)
}

func (s *RedisSet) AddAll(ctx context.Context, transcriptIDs []string) error {
	if len(transcriptIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(transcriptIDs))
	for i, id := range transcriptIDs {
		members[i] = id
	}
	return s.client.SAdd(ctx, s.key, members...)
}
