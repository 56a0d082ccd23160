package ports

import (
	"context"
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
)

// PathResolver maps a local item identifier (local:track:… or local:ads:…)
// to a file the audio engine can open.
type PathResolver interface {
	// Resolve fails with domain.ErrBasePathUnset when the relevant base
	// directory is not configured.
	Resolve(itemID string) (string, error)
}

// ScheduleProvider returns prayer times for a location and date.
type ScheduleProvider interface {
	Daily(ctx context.Context, locationID string, date time.Time) (domain.DailySchedule, error)
}

// Notifier is a fire-and-forget sink for user-visible notices.
type Notifier interface {
	Notify(level domain.NotificationLevel, message string)
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

// Clock abstracts wall-clock time so schedulers and countdowns can be tested.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer

	// NewTicker returns a ticker delivering ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}
