package redisstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// PlaybackMemoryRepository stores PlaybackMemory as one JSON value.
type PlaybackMemoryRepository struct {
	client redis.UniversalClient
}

// NewPlaybackMemoryRepository creates a repository on client.
func NewPlaybackMemoryRepository(client redis.UniversalClient) *PlaybackMemoryRepository {
	return &PlaybackMemoryRepository{client: client}
}

// Load returns domain.ErrNotFound when nothing has been saved.
func (r *PlaybackMemoryRepository) Load(ctx context.Context) (domain.PlaybackMemory, error) {
	var memory domain.PlaybackMemory
	if err := getJSON(ctx, r.client, KeyPlaybackMemory, &memory); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return memory, err
		}
		return memory, domain.NewRepositoryError("load", "playback_memory", "get failed", err)
	}
	return memory, nil
}

// Save overwrites the stored memory.
func (r *PlaybackMemoryRepository) Save(ctx context.Context, memory domain.PlaybackMemory) error {
	if err := setJSON(ctx, r.client, KeyPlaybackMemory, memory); err != nil {
		return domain.NewRepositoryError("save", "playback_memory", "set failed", err)
	}
	return nil
}

func getJSON(ctx context.Context, client redis.UniversalClient, key string, v any) error {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func setJSON(ctx context.Context, client redis.UniversalClient, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, 0).Err()
}

var _ ports.PlaybackMemoryRepository = (*PlaybackMemoryRepository)(nil)
