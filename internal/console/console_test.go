package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/adzantune/internal/adapter/clock"
	remotemock "github.com/tejashwikalptaru/adzantune/internal/adapter/remote/mock"
	"github.com/tejashwikalptaru/adzantune/internal/app"
	"github.com/tejashwikalptaru/adzantune/internal/config"
	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/logger"
)

type staticSchedules struct{}

func (staticSchedules) Daily(_ context.Context, _ string, date time.Time) (domain.DailySchedule, error) {
	return domain.DailySchedule{
		Date: date.Format(domain.DateLayout), Imsak: "04:30", Subuh: "04:40",
		Dzuhur: "12:00", Ashar: "15:15", Maghrib: "18:05", Isya: "19:15",
	}, nil
}

type harness struct {
	console *Console
	app     *app.Application
	remote  *remotemock.Session
	out     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Schedule.Timezone = "UTC"
	cfg.Schedule.LocationID = "1301"
	cfg.Library.MusicDir = "/music"
	cfg.Library.AdsDir = "/ads"
	cfg.Announcement.AudioPath = "/audio/adzan.mp3"

	remote := remotemock.NewSession("dev-1")
	application, err := app.NewApplication(cfg, app.Options{
		UseMockAudio: true,
		Logger:       logger.NewTestLogger(),
		Clock:        clock.NewFake(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)),
		Registry:     prometheus.NewRegistry(),
		Schedules:    staticSchedules{},
		Remote:       remote,
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	c := New(Deps{
		Logger:     application.Logger(),
		Bus:        application.EventBus(),
		Arbitrator: application.Arbitrator(),
		Queue:      application.Queue(),
		Local:      application.LocalPlayer(),
		Scheduler:  application.Scheduler(),
		Remote:     application.Remote(),
		Catalog:    application.Library(),
	}, out)

	t.Cleanup(func() {
		c.Close()
		_ = application.Shutdown()
	})
	return &harness{console: c, app: application, remote: remote, out: out}
}

func (h *harness) run(t *testing.T, lines ...string) string {
	t.Helper()
	h.out.Reset()
	for _, line := range lines {
		require.NoError(t, h.console.Execute(context.Background(), line))
	}
	return h.out.String()
}

func TestPlayAndStatus(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "play a.mp3 b.mp3", "status")

	assert.Contains(t, out, "* now playing Mock Artist - a")
	assert.Contains(t, out, "normal:   local (playing)")
	assert.Contains(t, out, "modes:    shuffle off, repeat off")
	assert.Equal(t, []string{"local:track:a.mp3", "local:track:b.mp3"}, h.app.Queue().State().Items)
}

func TestPlayRemoteContext(t *testing.T) {
	h := newHarness(t)

	h.run(t, "play spotify:playlist:37i9dQZF1DXcBWIGoYBM5M spotify:track:4uLU6hMCjMI75M1A2tKUQC")

	assert.Contains(t, h.remote.Calls(),
		"play_context:dev-1:spotify:playlist:37i9dQZF1DXcBWIGoYBM5M:spotify:track:4uLU6hMCjMI75M1A2tKUQC")
	assert.True(t, h.app.Arbitrator().Normal().WasRemotePlaying())
}

func TestCommandsDuringAnnouncement(t *testing.T) {
	h := newHarness(t)
	h.run(t, "play a.mp3")

	out := h.run(t, "adzan Dzuhur", "next", "dismiss", "dismiss")

	assert.Contains(t, out, "* status idle -> announcementPlaying")
	assert.Contains(t, out, "* [warning] Prayer time is in progress")
	assert.Contains(t, out, "error: "+domain.ErrPrayerInProgress.Error())
	assert.Contains(t, out, "nothing to dismiss")
	assert.Equal(t, domain.StatusIdle, h.app.Arbitrator().Status())
}

func TestAdCommands(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "ad promo.mp3", "ad other.mp3", "stop-ad", "stop-ad")

	assert.Contains(t, out, "* advertisement promo.mp3")
	assert.Contains(t, out, "* [warning] An advertisement is playing")
	assert.Contains(t, out, "no advertisement is playing")
}

func TestVolumeSeekValidation(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "vol 150", "seek", "vol 40", "vol")

	assert.Contains(t, out, "error: validation error for volume")
	assert.Contains(t, out, "usage: seek")
	assert.Contains(t, out, "volume: 40")
	assert.InDelta(t, 0.4, h.app.LocalPlayer().Volume(), 1e-9)
}

func TestModesQueueAndRecent(t *testing.T) {
	h := newHarness(t)
	h.remote.SetQueue(nil, []domain.RemoteItem{
		{URI: "spotify:track:1", Name: "First", PlayedAt: time.Date(2025, 3, 13, 20, 0, 0, 0, time.UTC)},
		{URI: "spotify:track:2"},
	})

	out := h.run(t, "play a.mp3 b.mp3", "next", "shuffle", "repeat", "queue", "recent 1")

	assert.Contains(t, out, "shuffle: on")
	assert.Contains(t, out, "repeat: all")
	assert.Contains(t, out, "   1  local:track:a.mp3")
	assert.Contains(t, out, ">  2  local:track:b.mp3")
	assert.Contains(t, out, "First (spotify:track:1)")
	assert.NotContains(t, out, "spotify:track:2")
}

func TestNextPrayer(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "next-prayer")

	assert.Contains(t, out, "next prayer: Dzuhur at 12:00")
}

type stubCatalog struct{}

func (stubCatalog) Tracks(context.Context) ([]string, error) {
	return []string{"local:track:a.mp3", "local:track:albums/b.wav"}, nil
}

func (stubCatalog) Ads(context.Context) ([]string, error) { return nil, nil }

func TestLibrary(t *testing.T) {
	h := newHarness(t)
	h.console.catalog = stubCatalog{}

	out := h.run(t, "library")
	assert.Contains(t, out, "  a.mp3\n")
	assert.Contains(t, out, "  albums/b.wav\n")

	assert.Contains(t, h.run(t, "library ads"), "no playable files")
}

func TestUnknownAndQuit(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.run(t, "bogus"), `unknown command "bogus"`)
	assert.ErrorIs(t, h.console.Execute(context.Background(), "quit"), ErrQuit)
}

func TestRunStopsAtQuit(t *testing.T) {
	h := newHarness(t)

	err := h.console.Run(context.Background(), strings.NewReader("help\nquit\nplay a.mp3\n"))

	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "commands:")
	assert.Empty(t, h.app.LocalPlayer().CurrentItem(), "lines after quit are not executed")
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "95", want: 95 * time.Second},
		{in: "1:35", want: 95 * time.Second},
		{in: "2.5", want: 2500 * time.Millisecond},
		{in: "1:75", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePosition(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestItemID(t *testing.T) {
	assert.Equal(t, "local:track:song.mp3", itemID("song.mp3"))
	assert.Equal(t, "spotify:track:1", itemID("spotify:track:1"))
	assert.Equal(t, "local:track:x.mp3", itemID("local:track:x.mp3"))
}
