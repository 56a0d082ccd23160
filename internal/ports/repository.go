// Package ports define repository interfaces for data persistence abstraction.
// These interfaces enable the repository pattern and allow swapping persistence mechanisms.
package ports

import (
	"context"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
)

// PlayedLedger records which prayers already triggered an announcement, per date.
//
// Thread-safety: Implementations must be thread-safe.
type PlayedLedger interface {
	// Played returns the set of prayers marked for date (YYYY-MM-DD).
	// An unknown date yields an empty set, not an error.
	Played(ctx context.Context, date string) (domain.PlayedSet, error)

	// MarkPlayed marks prayer as played on date.
	MarkPlayed(ctx context.Context, date, prayer string) error

	// Prune removes every date other than keepDate.
	Prune(ctx context.Context, keepDate string) error
}

// PlaybackMemoryRepository persists what was last playing.
//
// Thread-safety: Implementations must be thread-safe.
type PlaybackMemoryRepository interface {
	// Load returns the saved memory, or domain.ErrNotFound if none was saved.
	Load(ctx context.Context) (domain.PlaybackMemory, error)

	// Save replaces the saved memory.
	Save(ctx context.Context, memory domain.PlaybackMemory) error
}

// TokenStore persists the remote OAuth credential across restarts.
//
// Thread-safety: Implementations must be thread-safe.
type TokenStore interface {
	// LoadToken returns the stored credential, or domain.ErrNotFound.
	LoadToken(ctx context.Context) (*domain.Credential, error)

	// SaveToken replaces the stored credential.
	SaveToken(ctx context.Context, cred *domain.Credential) error
}
