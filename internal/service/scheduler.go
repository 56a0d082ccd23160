package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
	"github.com/tejashwikalptaru/adzantune/internal/telemetry"
)

const (
	// DefaultTolerance is how long after a scheduled minute an announcement
	// may still fire. It must exceed the poll interval by a wide margin.
	DefaultTolerance = 60 * time.Second

	// DefaultPollInterval is the scheduler tick.
	DefaultPollInterval = time.Second

	// scheduleRetryInterval limits schedule fetches after a failure.
	scheduleRetryInterval = 30 * time.Second
)

// AnnouncementGate reports the arbitration status and starts announcements.
// StartAnnouncement reports false when the announcement could not begin.
type AnnouncementGate interface {
	Status() domain.PlaybackStatus
	StartAnnouncement(prayer string) bool
}

// SchedulerConfig holds the scheduler settings.
type SchedulerConfig struct {
	LocationID   string
	Tolerance    time.Duration
	PollInterval time.Duration
	Enabled      bool

	// Location is the time zone the schedule is expressed in. Nil means UTC.
	Location *time.Location
}

// Scheduler polls the wall clock against today's prayer schedule and
// starts each prayer's announcement at most once per day.
type Scheduler struct {
	logger    *slog.Logger
	clock     ports.Clock
	schedules ports.ScheduleProvider
	ledger    ports.PlayedLedger
	gate      AnnouncementGate
	metrics   *telemetry.Metrics
	cfg       SchedulerConfig

	// Per-date cache, dropped on rollover
	date        string
	schedule    *domain.DailySchedule
	played      domain.PlayedSet
	lastFetchAt time.Time
	enabled     bool
	stateMu     sync.Mutex

	mu      sync.Mutex
	stop    chan struct{}
	running bool
	wg      sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(
	logger *slog.Logger,
	clock ports.Clock,
	schedules ports.ScheduleProvider,
	ledger ports.PlayedLedger,
	gate AnnouncementGate,
	metrics *telemetry.Metrics,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Scheduler{
		logger:    logger,
		clock:     clock,
		schedules: schedules,
		ledger:    ledger,
		gate:      gate,
		metrics:   metrics,
		cfg:       cfg,
		enabled:   cfg.Enabled,
	}
}

// Start begins polling. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	stop := s.stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C():
				s.Check(ctx, s.clock.Now())
			}
		}
	}()

	s.logger.Info("scheduler started",
		slog.String("location_id", s.cfg.LocationID),
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Duration("tolerance", s.cfg.Tolerance))
}

// Stop cancels the ticker and waits for the poll goroutine to exit.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// SetEnabled turns announcements on or off from the next tick.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.enabled = enabled
}

// Enabled reports whether announcements are on.
func (s *Scheduler) Enabled() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.enabled
}

// Check runs one poll at now. It returns the prayer it fired, if any.
func (s *Scheduler) Check(ctx context.Context, now time.Time) (string, bool) {
	s.stateMu.Lock()

	now = now.In(s.cfg.Location)
	s.rolloverLocked(ctx, now)

	if !s.enabled {
		s.stateMu.Unlock()
		return "", false
	}
	if status := s.gate.Status(); status != domain.StatusIdle {
		s.stateMu.Unlock()
		return "", false
	}

	schedule, ok := s.scheduleLocked(ctx, now)
	if !ok {
		s.stateMu.Unlock()
		return "", false
	}

	if s.played == nil {
		played, err := s.ledger.Played(ctx, s.date)
		if err != nil {
			s.stateMu.Unlock()
			s.logger.Warn("cannot read played ledger", slog.String("date", s.date), slog.Any("error", err))
			return "", false
		}
		s.played = played
	}

	prayer, due := s.duePrayerLocked(schedule, now)
	if !due {
		s.stateMu.Unlock()
		return "", false
	}

	// Reserved while the gate decides; only a started announcement is persisted
	s.played[prayer] = true
	date := s.date
	s.stateMu.Unlock()

	s.logger.Info("announcement due", slog.String("prayer", prayer), slog.Time("at", now))
	if !s.gate.StartAnnouncement(prayer) {
		s.stateMu.Lock()
		if s.date == date && s.played != nil {
			delete(s.played, prayer)
		}
		s.stateMu.Unlock()
		s.logger.Info("announcement deferred", slog.String("prayer", prayer))
		return "", false
	}

	if err := s.ledger.MarkPlayed(ctx, date, prayer); err != nil {
		s.logger.Error("failed to persist played prayer",
			slog.String("date", date),
			slog.String("prayer", prayer),
			slog.Any("error", err))
	}
	s.metrics.AnnouncementFired(prayer)

	return prayer, true
}

// duePrayerLocked returns the first unplayed prayer whose window contains now.
func (s *Scheduler) duePrayerLocked(schedule domain.DailySchedule, now time.Time) (string, bool) {
	nowSecs := domain.SecondsSinceMidnight(now)
	tolerance := int(s.cfg.Tolerance / time.Second)

	for _, p := range schedule.PrayerTimes() {
		at, err := domain.ClockSeconds(p.Time)
		if err != nil {
			continue
		}
		if nowSecs >= at && nowSecs < at+tolerance && !s.played[p.Name] {
			return p.Name, true
		}
	}
	return "", false
}

// rolloverLocked drops per-date state when the calendar date changes.
func (s *Scheduler) rolloverLocked(ctx context.Context, now time.Time) {
	date := now.Format(domain.DateLayout)
	if date == s.date {
		return
	}

	previous := s.date
	s.date = date
	s.schedule = nil
	s.played = nil
	s.lastFetchAt = time.Time{}

	if err := s.ledger.Prune(ctx, date); err != nil {
		s.logger.Warn("failed to prune played ledger", slog.Any("error", err))
	}

	if previous != "" {
		s.logger.Info("date rolled over", slog.String("from", previous), slog.String("to", date))
	}
}

// scheduleLocked returns today's schedule, fetching it when missing.
func (s *Scheduler) scheduleLocked(ctx context.Context, now time.Time) (domain.DailySchedule, bool) {
	if s.schedule != nil {
		return *s.schedule, true
	}

	if !s.lastFetchAt.IsZero() && now.Sub(s.lastFetchAt) < scheduleRetryInterval {
		return domain.DailySchedule{}, false
	}
	s.lastFetchAt = now

	schedule, err := s.schedules.Daily(ctx, s.cfg.LocationID, now)
	if err != nil {
		s.logger.Warn("failed to fetch prayer schedule",
			slog.String("location_id", s.cfg.LocationID),
			slog.String("date", s.date),
			slog.Any("error", err))
		return domain.DailySchedule{}, false
	}

	s.schedule = &schedule
	s.logger.Debug("prayer schedule loaded", slog.String("date", s.date), slog.String("city", schedule.City))
	return schedule, true
}

// Today returns the schedule for the current date, fetching it if needed.
func (s *Scheduler) Today(ctx context.Context) (domain.DailySchedule, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	now := s.clock.Now().In(s.cfg.Location)
	s.rolloverLocked(ctx, now)
	if s.schedule != nil {
		return *s.schedule, nil
	}

	schedule, err := s.schedules.Daily(ctx, s.cfg.LocationID, now)
	if err != nil {
		return domain.DailySchedule{}, err
	}
	s.schedule = &schedule
	return schedule, nil
}

// NextPrayer returns the next scheduled time today, Imsak included.
func (s *Scheduler) NextPrayer(ctx context.Context) (domain.PrayerTime, bool, error) {
	schedule, err := s.Today(ctx)
	if err != nil {
		return domain.PrayerTime{}, false, err
	}
	p, ok := schedule.NextPrayer(s.clock.Now().In(s.cfg.Location))
	return p, ok, nil
}
