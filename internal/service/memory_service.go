package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// MemoryService keeps the persisted record of what was last playing, so an
// empty play command can pick up where playback left off after a restart.
// Saves are best-effort: failures are logged and the cached value stays current.
type MemoryService struct {
	// Dependencies (injected)
	logger     *slog.Logger
	repository ports.PlaybackMemoryRepository
	bus        ports.EventBus
	clock      ports.Clock

	// Cached memory
	memory domain.PlaybackMemory
	subID  domain.SubscriptionID

	mu sync.RWMutex
}

// NewMemoryService loads the saved memory and starts tracking playback mode changes.
func NewMemoryService(
	ctx context.Context,
	logger *slog.Logger,
	repository ports.PlaybackMemoryRepository,
	bus ports.EventBus,
	clock ports.Clock,
) *MemoryService {
	s := &MemoryService{
		logger:     logger,
		repository: repository,
		bus:        bus,
		clock:      clock,
	}

	memory, err := repository.Load(ctx)
	switch {
	case err == nil:
		s.memory = memory
		logger.Debug("playback memory restored",
			slog.String("item", memory.LastPlayedItem),
			slog.String("context", memory.LastPlayedContext))
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("no saved playback memory")
	default:
		logger.Warn("failed to load playback memory", slog.Any("error", err))
	}

	s.subID = bus.Subscribe(domain.EventPlaybackModeChanged, s.onModeChanged)

	return s
}

// Get returns the cached memory.
func (s *MemoryService) Get() domain.PlaybackMemory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory
}

// RecordItem notes that itemID started playing, optionally inside contextID.
func (s *MemoryService) RecordItem(ctx context.Context, itemID, contextID string) {
	s.update(ctx, func(m *domain.PlaybackMemory) bool {
		m.LastPlayedItem = itemID
		m.LastPlayedContext = contextID
		m.Source = domain.SourceOf(itemID)
		if itemID == "" && contextID != "" {
			m.Source = domain.SourceRemote
		}
		m.PositionMs = 0
		m.DurationMs = 0
		return true
	})
}

// RecordProgress updates the position of the remembered item.
func (s *MemoryService) RecordProgress(ctx context.Context, itemID string, position, duration time.Duration) {
	s.update(ctx, func(m *domain.PlaybackMemory) bool {
		if m.LastPlayedItem != itemID {
			return false
		}
		m.PositionMs = position.Milliseconds()
		if duration > 0 {
			m.DurationMs = duration.Milliseconds()
		}
		return true
	})
}

// RecordDuration sets the duration of the remembered item.
func (s *MemoryService) RecordDuration(ctx context.Context, itemID string, duration time.Duration) {
	s.update(ctx, func(m *domain.PlaybackMemory) bool {
		if m.LastPlayedItem != itemID || duration <= 0 {
			return false
		}
		m.DurationMs = duration.Milliseconds()
		return true
	})
}

// RecordModes stores the shuffle and repeat modes.
func (s *MemoryService) RecordModes(ctx context.Context, shuffle bool, repeat domain.RepeatMode) {
	s.update(ctx, func(m *domain.PlaybackMemory) bool {
		if m.Shuffle == shuffle && m.Repeat == repeat {
			return false
		}
		m.Shuffle = shuffle
		m.Repeat = repeat
		return true
	})
}

func (s *MemoryService) onModeChanged(event domain.Event) {
	e, ok := event.(domain.PlaybackModeChangedEvent)
	if !ok {
		return
	}
	s.RecordModes(context.Background(), e.Shuffle, e.Repeat)
}

// update applies fn to the cached memory and saves it when fn reports a change.
func (s *MemoryService) update(ctx context.Context, fn func(m *domain.PlaybackMemory) bool) {
	s.mu.Lock()
	if !fn(&s.memory) {
		s.mu.Unlock()
		return
	}
	s.memory.UpdatedAt = s.clock.Now()
	snapshot := s.memory
	s.mu.Unlock()

	if err := s.repository.Save(ctx, snapshot); err != nil {
		s.logger.Warn("failed to save playback memory", slog.Any("error", err))
	}
}

// Close stops tracking mode changes.
func (s *MemoryService) Close() {
	s.bus.Unsubscribe(s.subID)
}
