// Package memory provides in-process implementations of the repository ports.
// State lives for the lifetime of the process only.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// PlayedLedger implements ports.PlayedLedger with a map keyed by date.
//
// Thread-safe: All operations protected by sync.RWMutex.
type PlayedLedger struct {
	days map[string]domain.PlayedSet
	mu   sync.RWMutex
}

// NewPlayedLedger creates an empty ledger.
func NewPlayedLedger() *PlayedLedger {
	return &PlayedLedger{
		days: make(map[string]domain.PlayedSet),
	}
}

// Played returns a copy of the prayers marked on date.
func (l *PlayedLedger) Played(_ context.Context, date string) (domain.PlayedSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	set := make(domain.PlayedSet, len(l.days[date]))
	maps.Copy(set, l.days[date])
	return set, nil
}

// MarkPlayed records prayer as played on date.
func (l *PlayedLedger) MarkPlayed(_ context.Context, date, prayer string) error {
	if date == "" || prayer == "" {
		return domain.NewValidationError("prayer", prayer, "date and prayer are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.days[date] == nil {
		l.days[date] = make(domain.PlayedSet)
	}
	l.days[date][prayer] = true
	return nil
}

// Prune drops every date except keepDate.
func (l *PlayedLedger) Prune(_ context.Context, keepDate string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for date := range l.days {
		if date != keepDate {
			delete(l.days, date)
		}
	}
	return nil
}

// Dates returns the number of dates held, for tests.
func (l *PlayedLedger) Dates() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.days)
}

// Verify interface implementation
var _ ports.PlayedLedger = (*PlayedLedger)(nil)
