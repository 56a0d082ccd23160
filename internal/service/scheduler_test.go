package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/adzantune/internal/adapter/clock"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/repository/memory"
	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/logger"
	"github.com/tejashwikalptaru/adzantune/internal/telemetry"
	"github.com/tejashwikalptaru/adzantune/internal/testutil"
)

type stubSchedules struct {
	mu       sync.Mutex
	schedule domain.DailySchedule
	err      error
	calls    int
}

func (s *stubSchedules) Daily(_ context.Context, _ string, date time.Time) (domain.DailySchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return domain.DailySchedule{}, s.err
	}
	schedule := s.schedule
	schedule.Date = date.Format(domain.DateLayout)
	return schedule, nil
}

func (s *stubSchedules) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubStatus stands in for the arbitrator: an announcement starts only when
// idle and not refused.
type stubStatus struct {
	mu      sync.Mutex
	status  domain.PlaybackStatus
	refuse  bool
	started []string
}

func (s *stubStatus) Status() domain.PlaybackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubStatus) StartAnnouncement(prayer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse || s.status != domain.StatusIdle {
		return false
	}
	s.status = domain.StatusAnnouncementPlaying
	s.started = append(s.started, prayer)
	return true
}

func (s *stubStatus) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

func (s *stubStatus) Refuse(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

func (s *stubStatus) Set(status domain.PlaybackStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func testSchedule() domain.DailySchedule {
	return domain.DailySchedule{
		Imsak:   "04:30",
		Subuh:   "04:40",
		Dzuhur:  "12:00",
		Ashar:   "15:15",
		Maghrib: "18:05",
		Isya:    "19:15",
		City:    "KOTA JAKARTA",
	}
}

type schedulerFixture struct {
	scheduler *Scheduler
	clock     *clock.Fake
	schedules *stubSchedules
	ledger    *memory.PlayedLedger
	status    *stubStatus
}

func newSchedulerFixture(t *testing.T, start time.Time) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		clock:     clock.NewFake(start),
		schedules: &stubSchedules{schedule: testSchedule()},
		ledger:    memory.NewPlayedLedger(),
		status:    &stubStatus{},
	}
	f.scheduler = NewScheduler(logger.NewTestLogger(), f.clock, f.schedules, f.ledger, f.status, nil,
		SchedulerConfig{LocationID: "1301", Enabled: true})
	return f
}

func at(hh, mm, ss int) time.Time {
	return time.Date(2025, 3, 14, hh, mm, ss, 0, time.UTC)
}

func TestScheduler_FiresInsideWindowOnce(t *testing.T) {
	f := newSchedulerFixture(t, at(12, 0, 0))
	ctx := context.Background()

	prayer, ok := f.scheduler.Check(ctx, at(12, 0, 30))
	require.True(t, ok)
	assert.Equal(t, domain.PrayerDzuhur, prayer)
	assert.Equal(t, domain.StatusAnnouncementPlaying, f.status.Status())

	played, err := f.ledger.Played(ctx, "2025-03-14")
	require.NoError(t, err)
	assert.True(t, played[domain.PrayerDzuhur])

	// Back to idle; the second poll inside the window must not re-fire.
	f.status.Set(domain.StatusIdle)
	_, ok = f.scheduler.Check(ctx, at(12, 0, 45))
	assert.False(t, ok)
	assert.Equal(t, []string{domain.PrayerDzuhur}, f.status.Started())
}

func TestScheduler_WindowIsHalfOpen(t *testing.T) {
	ctx := context.Background()

	f := newSchedulerFixture(t, at(11, 59, 0))
	_, ok := f.scheduler.Check(ctx, at(11, 59, 59))
	assert.False(t, ok, "before the scheduled minute")

	_, ok = f.scheduler.Check(ctx, at(12, 1, 0))
	assert.False(t, ok, "window closes after the tolerance")

	g := newSchedulerFixture(t, at(12, 0, 0))
	_, ok = g.scheduler.Check(ctx, at(12, 0, 0))
	assert.True(t, ok, "window opens at the scheduled second")
}

func TestScheduler_RequiresIdle(t *testing.T) {
	f := newSchedulerFixture(t, at(12, 0, 0))
	f.status.Set(domain.StatusAdvertisementPlaying)

	_, ok := f.scheduler.Check(context.Background(), at(12, 0, 10))
	assert.False(t, ok)

	played, _ := f.ledger.Played(context.Background(), "2025-03-14")
	assert.Empty(t, played)

	// Once idle again, still inside the window, it fires.
	f.status.Set(domain.StatusIdle)
	_, ok = f.scheduler.Check(context.Background(), at(12, 0, 40))
	assert.True(t, ok)
}

func TestScheduler_RefusedAnnouncementIsNotMarked(t *testing.T) {
	f := newSchedulerFixture(t, at(12, 0, 0))
	ctx := context.Background()

	// Idle when polled, but an advertisement wins the race to the speaker.
	f.status.Refuse(true)
	_, ok := f.scheduler.Check(ctx, at(12, 0, 10))
	assert.False(t, ok)
	assert.Empty(t, f.status.Started())

	played, err := f.ledger.Played(ctx, "2025-03-14")
	require.NoError(t, err)
	assert.False(t, played[domain.PrayerDzuhur], "a refused announcement is not persisted")

	f.status.Refuse(false)
	prayer, ok := f.scheduler.Check(ctx, at(12, 0, 20))
	require.True(t, ok, "the prayer fires on a later poll inside the window")
	assert.Equal(t, domain.PrayerDzuhur, prayer)

	played, err = f.ledger.Played(ctx, "2025-03-14")
	require.NoError(t, err)
	assert.True(t, played[domain.PrayerDzuhur])
}

func TestScheduler_Disabled(t *testing.T) {
	f := newSchedulerFixture(t, at(12, 0, 0))
	f.scheduler.SetEnabled(false)

	_, ok := f.scheduler.Check(context.Background(), at(12, 0, 10))
	assert.False(t, ok)
	assert.False(t, f.scheduler.Enabled())

	f.scheduler.SetEnabled(true)
	_, ok = f.scheduler.Check(context.Background(), at(12, 0, 11))
	assert.True(t, ok)
}

func TestScheduler_RespectsPersistedLedger(t *testing.T) {
	f := newSchedulerFixture(t, at(12, 0, 0))
	require.NoError(t, f.ledger.MarkPlayed(context.Background(), "2025-03-14", domain.PrayerDzuhur))

	_, ok := f.scheduler.Check(context.Background(), at(12, 0, 5))
	assert.False(t, ok)
}

func TestScheduler_ImsakDoesNotFire(t *testing.T) {
	f := newSchedulerFixture(t, at(4, 30, 0))

	_, ok := f.scheduler.Check(context.Background(), at(4, 30, 10))
	assert.False(t, ok)
}

func TestScheduler_DateRollover(t *testing.T) {
	f := newSchedulerFixture(t, at(12, 0, 0))
	ctx := context.Background()

	_, ok := f.scheduler.Check(ctx, at(12, 0, 10))
	require.True(t, ok)
	f.status.Set(domain.StatusIdle)

	nextDay := time.Date(2025, 3, 15, 12, 0, 20, 0, time.UTC)
	prayer, ok := f.scheduler.Check(ctx, nextDay)
	require.True(t, ok, "the played set resets on a new date")
	assert.Equal(t, domain.PrayerDzuhur, prayer)

	assert.Equal(t, 2, f.schedules.Calls())
	assert.Equal(t, 1, f.ledger.Dates(), "previous dates are pruned")
}

func TestScheduler_FetchRetryIsRateLimited(t *testing.T) {
	f := newSchedulerFixture(t, at(12, 0, 0))
	f.schedules.err = errors.New("upstream down")
	ctx := context.Background()

	f.scheduler.Check(ctx, at(12, 0, 1))
	f.scheduler.Check(ctx, at(12, 0, 2))
	f.scheduler.Check(ctx, at(12, 0, 20))
	assert.Equal(t, 1, f.schedules.Calls())

	f.schedules.mu.Lock()
	f.schedules.err = nil
	f.schedules.mu.Unlock()

	_, ok := f.scheduler.Check(ctx, at(12, 0, 31))
	assert.True(t, ok)
	assert.Equal(t, 2, f.schedules.Calls())
}

func TestScheduler_Timezone(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	f := newSchedulerFixture(t, at(5, 0, 0))
	f.scheduler = NewScheduler(logger.NewTestLogger(), f.clock, f.schedules, f.ledger, f.status, nil,
		SchedulerConfig{LocationID: "1301", Enabled: true, Location: jakarta})

	// 05:00:10 UTC is 12:00:10 in Jakarta.
	prayer, ok := f.scheduler.Check(context.Background(), at(5, 0, 10))
	require.True(t, ok)
	assert.Equal(t, domain.PrayerDzuhur, prayer)
}

func TestScheduler_CountsAnnouncements(t *testing.T) {
	f := newSchedulerFixture(t, at(12, 0, 0))
	reg := prometheus.NewRegistry()
	f.scheduler.metrics = telemetry.NewMetrics(reg)

	_, ok := f.scheduler.Check(context.Background(), at(12, 0, 10))
	require.True(t, ok)

	expected := `
# HELP adzantune_announcements_fired_total Prayer announcements fired by the scheduler
# TYPE adzantune_announcements_fired_total counter
adzantune_announcements_fired_total{prayer="Dzuhur"} 1
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "adzantune_announcements_fired_total"))
}

func TestScheduler_NextPrayer(t *testing.T) {
	f := newSchedulerFixture(t, at(12, 30, 0))

	next, ok, err := f.scheduler.NextPrayer(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PrayerAshar, next.Name)
	assert.Equal(t, "15:15", next.Time)
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	f := newSchedulerFixture(t, at(11, 59, 50))
	ctx := context.Background()

	f.scheduler.Start(ctx)
	f.scheduler.Start(ctx)

	f.clock.Advance(15 * time.Second)
	assert.Eventually(t, func() bool { return f.status.Status() == domain.StatusAnnouncementPlaying },
		time.Second, 5*time.Millisecond)

	f.scheduler.Stop()
	f.scheduler.Stop()
}
