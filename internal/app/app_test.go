package app

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/adzantune/internal/adapter/clock"
	remotemock "github.com/tejashwikalptaru/adzantune/internal/adapter/remote/mock"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/repository/redisstore"
	"github.com/tejashwikalptaru/adzantune/internal/config"
	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/logger"
	"github.com/tejashwikalptaru/adzantune/internal/testutil"
)

type fixedSchedules struct {
	mu       sync.Mutex
	schedule domain.DailySchedule
}

func (s *fixedSchedules) Daily(_ context.Context, _ string, date time.Time) (domain.DailySchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule := s.schedule
	schedule.Date = date.Format(domain.DateLayout)
	return schedule, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Schedule.Timezone = "UTC"
	cfg.Schedule.LocationID = "1301"
	cfg.Library.MusicDir = "/music"
	cfg.Library.AdsDir = "/ads"
	cfg.Announcement.AudioPath = "/audio/adzan.mp3"
	return cfg
}

func testOptions(c *clock.Fake) Options {
	return Options{
		UseMockAudio: true,
		Logger:       logger.NewTestLogger(),
		Clock:        c,
		Registry:     prometheus.NewRegistry(),
		Schedules: &fixedSchedules{schedule: domain.DailySchedule{
			Imsak: "04:30", Subuh: "04:40", Dzuhur: "12:00",
			Ashar: "15:15", Maghrib: "18:05", Isya: "19:15",
		}},
	}
}

func TestNewApplication(t *testing.T) {
	app, err := NewApplication(testConfig(), testOptions(clock.NewFake(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	require.NotNil(t, app)

	// Verify all services were created
	assert.NotNil(t, app.Arbitrator())
	assert.NotNil(t, app.Queue())
	assert.NotNil(t, app.LocalPlayer())
	assert.NotNil(t, app.Scheduler())
	assert.NotNil(t, app.Memory())
	assert.NotNil(t, app.EventBus())
	assert.Nil(t, app.Remote(), "remote is off by default")
	assert.Equal(t, domain.StatusIdle, app.Arbitrator().Status())

	// Cleanup
	assert.NoError(t, app.Shutdown())
}

func TestNewApplication_InvalidTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.Schedule.Timezone = "Mars/Olympus"

	_, err := NewApplication(cfg, testOptions(clock.NewFake(time.Now())))
	assert.Error(t, err)
}

func TestApplicationLifecycle(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	app, err := NewApplication(testConfig(), testOptions(clock.NewFake(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	var svcErr *domain.ServiceError
	assert.ErrorAs(t, app.Start(context.Background()), &svcErr, "second start must fail")

	assert.NoError(t, app.Shutdown())

	// Shutdown again should not panic
	assert.NoError(t, app.Shutdown())
}

func TestApplication_ScheduledAnnouncementInterruptsRemote(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	fake := clock.NewFake(time.Date(2025, 3, 14, 11, 59, 58, 0, time.UTC))
	remote := remotemock.NewSession("dev-1")
	opts := testOptions(fake)
	opts.Remote = remote

	app, err := NewApplication(testConfig(), opts)
	require.NoError(t, err)
	defer app.Shutdown()

	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.Arbitrator().Play(context.Background(), domain.PlayRequest{ItemID: "spotify:track:1"}))

	require.Eventually(t, func() bool {
		fake.Advance(time.Second)
		return app.Arbitrator().Status() == domain.StatusAnnouncementPlaying
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, remote.CallCount("pause"))
	assert.Equal(t, domain.PrayerDzuhur, app.Arbitrator().Interruption().Label)
}

func TestApplication_RedisBackend(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreRedisGoroutines()...)

	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Storage.Backend = config.StorageRedis
	cfg.Storage.RedisAddr = mr.Addr()

	app, err := NewApplication(cfg, testOptions(clock.NewFake(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, err)

	require.NoError(t, app.Arbitrator().Play(context.Background(), domain.PlayRequest{ItemID: "local:track:a.mp3"}))
	assert.True(t, mr.Exists(redisstore.KeyPlaybackMemory))

	require.NoError(t, app.Shutdown())
	mr.Close()
}

func TestApplication_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = config.StorageRedis
	cfg.Storage.RedisAddr = "127.0.0.1:1"

	_, err := NewApplication(cfg, testOptions(clock.NewFake(time.Now())))
	assert.Error(t, err)
}

func TestVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Contains(t, info.FullString(), "AdzanTune "+info.Version)

	attr := info.LogAttr()
	assert.Equal(t, "build", attr.Key)
	assert.Equal(t, slog.KindGroup, attr.Value.Kind())
	assert.Len(t, attr.Value.Group(), 3)
}
