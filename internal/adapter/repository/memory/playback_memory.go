package memory

import (
	"context"
	"sync"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// PlaybackMemoryRepository keeps the last PlaybackMemory in memory.
type PlaybackMemoryRepository struct {
	memory *domain.PlaybackMemory
	mu     sync.RWMutex
}

// NewPlaybackMemoryRepository creates an empty repository.
func NewPlaybackMemoryRepository() *PlaybackMemoryRepository {
	return &PlaybackMemoryRepository{}
}

// Load returns domain.ErrNotFound until something is saved.
func (r *PlaybackMemoryRepository) Load(_ context.Context) (domain.PlaybackMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.memory == nil {
		return domain.PlaybackMemory{}, domain.ErrNotFound
	}
	return *r.memory, nil
}

// Save replaces the stored memory.
func (r *PlaybackMemoryRepository) Save(_ context.Context, memory domain.PlaybackMemory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.memory = &memory
	return nil
}

var _ ports.PlaybackMemoryRepository = (*PlaybackMemoryRepository)(nil)
