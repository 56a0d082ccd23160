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

	"github.com/tejashwikalptaru/adzantune/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/clock"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/library"
	remotemock "github.com/tejashwikalptaru/adzantune/internal/adapter/remote/mock"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/repository/memory"
	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/logger"
	"github.com/tejashwikalptaru/adzantune/internal/telemetry"
	"github.com/tejashwikalptaru/adzantune/internal/testutil"
)

const (
	adzanPath   = "/audio/adzan.mp3"
	remoteTrack = "spotify:track:4uLU6hMCjMI75M1A2tKUQC"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(level domain.NotificationLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, level.String()+": "+message)
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type arbFixture struct {
	arb       *Arbitrator
	bus       *eventbus.SyncEventBus
	clock     *clock.Fake
	engine    *mock.Engine
	remote    *remotemock.Session
	queue     *QueueEngine
	local     *LocalPlayer
	announcer *ClipPlayer
	ads       *ClipPlayer
	memory    *MemoryService
	notes     *recordingNotifier
	registry  *prometheus.Registry

	mu     sync.Mutex
	events []domain.Event
}

func newArbFixture(t *testing.T, cfg ArbitratorConfig) *arbFixture {
	t.Helper()
	ctx := context.Background()
	log := logger.NewTestLogger()

	// Producers poll on their own clock so advancing the arbitrator's
	// clock never races their tick goroutines.
	producerClock := clock.NewFake(testEpoch)

	f := &arbFixture{
		bus:      eventbus.NewSyncEventBus(),
		clock:    clock.NewFake(testEpoch),
		engine:   newTestEngine(t),
		remote:   remotemock.NewSession("dev-1"),
		notes:    &recordingNotifier{},
		registry: prometheus.NewRegistry(),
	}
	f.bus.SubscribeAll(func(e domain.Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
	})

	resolver := library.NewResolver("/music", "/ads")
	f.queue = NewQueueEngine(f.bus, nil)
	f.local = NewLocalPlayer(log, f.engine, resolver, f.bus, producerClock, 0.8)
	f.local.settleDelay = 0
	f.announcer = NewClipPlayer(log, f.engine, producerClock)
	f.ads = NewClipPlayer(log, f.engine, producerClock)
	f.memory = NewMemoryService(ctx, log, memory.NewPlaybackMemoryRepository(), f.bus, f.clock)

	if cfg.AnnouncementPath == "" {
		cfg.AnnouncementPath = adzanPath
	}
	f.arb = NewArbitrator(ArbitratorDeps{
		Logger:    log,
		Bus:       f.bus,
		Clock:     f.clock,
		Queue:     f.queue,
		Local:     f.local,
		Remote:    f.remote,
		Announcer: f.announcer,
		Ads:       f.ads,
		Resolver:  resolver,
		Notifier:  f.notes,
		Memory:    f.memory,
		Metrics:   telemetry.NewMetrics(f.registry),
	}, cfg)

	t.Cleanup(func() {
		f.arb.Shutdown()
		_ = f.local.Shutdown()
		f.announcer.Shutdown()
		f.ads.Shutdown()
		f.memory.Close()
		_ = f.bus.Close()
	})
	return f
}

func defaultArbConfig() ArbitratorConfig {
	return ArbitratorConfig{IqomahDelay: 10 * time.Minute}
}

func (f *arbFixture) eventTypes() []domain.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]domain.EventType, 0, len(f.events))
	for _, e := range f.events {
		types = append(types, e.Type())
	}
	return types
}

func (f *arbFixture) eventsOf(eventType domain.EventType) []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, e := range f.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (f *arbFixture) statusTrail() []domain.PlaybackStatus {
	var trail []domain.PlaybackStatus
	for _, e := range f.eventsOf(domain.EventStatusChanged) {
		trail = append(trail, e.(domain.StatusChangedEvent).To)
	}
	return trail
}

func (f *arbFixture) playRemote(t *testing.T) {
	t.Helper()
	require.NoError(t, f.arb.Play(context.Background(), domain.PlayRequest{ItemID: remoteTrack}))
	require.True(t, f.arb.Normal().WasRemotePlaying())
}

func (f *arbFixture) playLocal(t *testing.T, items ...string) {
	t.Helper()
	require.NoError(t, f.arb.Play(context.Background(), domain.PlayRequest{Items: items}))
	require.True(t, f.arb.Normal().WasLocalPlaying())
}

func (f *arbFixture) announce(prayer string) {
	f.bus.Publish(domain.NewAnnouncementStartEvent(prayer))
}

func (f *arbFixture) endAdzan(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.SimulateEnd(adzanPath))
	f.announcer.tick()
}

func (f *arbFixture) localStatus(path string) domain.EngineStatus {
	status, _ := f.engine.StatusOf(path)
	return status
}

func TestArbitrator_AnnouncementPausesRemote(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)

	f.announce(domain.PrayerDzuhur)

	assert.Equal(t, domain.StatusAnnouncementPlaying, f.arb.Status())
	assert.Equal(t, 1, f.remote.CallCount("pause"))
	assert.Contains(t, f.remote.Calls(), "pause:dev-1")

	ic := f.arb.Interruption()
	require.NotNil(t, ic)
	assert.Equal(t, domain.InterruptionAnnouncement, ic.Kind)
	assert.Equal(t, domain.PrayerDzuhur, ic.Label)
	assert.Equal(t, testEpoch, ic.StartedAt)
	assert.NotEmpty(t, ic.ID)
	assert.True(t, ic.Snapshot.WasRemotePlaying())
	assert.Equal(t, "dev-1", ic.Snapshot.DeviceID)

	assert.Equal(t, domain.EnginePlaying, f.localStatus(adzanPath))
	assert.True(t, f.announcer.Active())
}

func TestArbitrator_AnnouncementPausesLocal(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playLocal(t, "local:track:a.mp3")

	f.announce(domain.PrayerAshar)

	assert.Equal(t, domain.EnginePaused, f.localStatus("/music/a.mp3"))
	ic := f.arb.Interruption()
	require.NotNil(t, ic)
	assert.True(t, ic.Snapshot.WasLocalPlaying())
	assert.Zero(t, f.remote.CallCount("pause"))
}

func TestArbitrator_AnnouncementIgnoredWhenBusy(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())

	f.announce(domain.PrayerAshar)
	first := f.arb.Interruption()
	f.announce(domain.PrayerMaghrib)

	assert.Equal(t, first.ID, f.arb.Interruption().ID)
	assert.Equal(t, domain.PrayerAshar, f.arb.Interruption().Label)
}

func TestArbitrator_FullPrayerCycleResumesRemote(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)
	localCalls := len(f.engine.Calls())

	f.announce(domain.PrayerDzuhur)
	f.endAdzan(t)

	assert.Equal(t, domain.StatusIqomahCountdown, f.arb.Status())
	assert.Equal(t, 1, f.clock.PendingTimers())
	assert.Len(t, f.eventsOf(domain.EventAnnouncementEnd), 1)
	iqomahStart := f.eventsOf(domain.EventIqomahStart)
	require.Len(t, iqomahStart, 1)
	assert.Equal(t, 10*time.Minute, iqomahStart[0].(domain.IqomahStartEvent).Delay)

	f.clock.Advance(9 * time.Minute)
	assert.Equal(t, domain.StatusIqomahCountdown, f.arb.Status())

	f.clock.Advance(time.Minute)

	assert.Equal(t, domain.StatusIdle, f.arb.Status())
	assert.Nil(t, f.arb.Interruption())
	assert.Equal(t, 1, f.remote.CallCount("resume"))
	assert.Contains(t, f.remote.Calls(), "resume:dev-1")
	assert.True(t, f.arb.Normal().WasRemotePlaying())

	ends := f.eventsOf(domain.EventIqomahEnd)
	require.Len(t, ends, 1)
	assert.False(t, ends[0].(domain.IqomahEndEvent).Forced)

	// Only the adzan clip touched the engine; the local player was not resumed.
	for _, call := range f.engine.Calls()[localCalls:] {
		assert.True(t, strings.HasSuffix(call, adzanPath), call)
	}

	assert.Equal(t, []domain.PlaybackStatus{
		domain.StatusAnnouncementPlaying,
		domain.StatusWaitingForIqomah,
		domain.StatusIqomahCountdown,
		domain.StatusIdle,
	}, f.statusTrail())
}

func TestArbitrator_FullPrayerCycleResumesLocal(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playLocal(t, "local:track:a.mp3")

	f.announce(domain.PrayerMaghrib)
	f.endAdzan(t)
	f.clock.Advance(10 * time.Minute)

	assert.Equal(t, domain.StatusIdle, f.arb.Status())
	assert.Equal(t, domain.EnginePlaying, f.localStatus("/music/a.mp3"))
	assert.Zero(t, f.remote.CallCount("resume"))
}

func TestArbitrator_DismissAnnouncementDoesNotResume(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)

	f.announce(domain.PrayerIsya)
	require.True(t, f.arb.Dismiss())

	assert.Equal(t, domain.StatusIdle, f.arb.Status())
	assert.Nil(t, f.arb.Interruption())
	assert.Zero(t, f.remote.CallCount("resume"))
	assert.False(t, f.announcer.Active())
	assert.Len(t, f.eventsOf(domain.EventAnnouncementStop), 1)
	assert.Empty(t, f.eventsOf(domain.EventIqomahStart))
	assert.Zero(t, f.clock.PendingTimers())

	normal := f.arb.Normal()
	assert.Equal(t, domain.NormalRemote, normal.Kind)
	assert.True(t, normal.Paused)

	assert.Equal(t, []domain.PlaybackStatus{domain.StatusAnnouncementPlaying, domain.StatusIdle}, f.statusTrail())
}

func TestArbitrator_DismissAnnouncementResumeOptIn(t *testing.T) {
	cfg := defaultArbConfig()
	cfg.ResumeOnDismiss = true
	f := newArbFixture(t, cfg)
	f.playRemote(t)

	f.announce(domain.PrayerIsya)
	require.True(t, f.arb.Dismiss())

	assert.Equal(t, 1, f.remote.CallCount("resume"))
	assert.True(t, f.arb.Normal().WasRemotePlaying())
}

func TestArbitrator_DismissCountdownResumes(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)

	f.announce(domain.PrayerSubuh)
	f.endAdzan(t)
	require.Equal(t, domain.StatusIqomahCountdown, f.arb.Status())

	require.True(t, f.arb.Dismiss())

	assert.Equal(t, domain.StatusIdle, f.arb.Status())
	assert.Zero(t, f.clock.PendingTimers())
	assert.Equal(t, 1, f.remote.CallCount("resume"))

	ends := f.eventsOf(domain.EventIqomahEnd)
	require.Len(t, ends, 1)
	assert.True(t, ends[0].(domain.IqomahEndEvent).Forced)

	f.clock.Advance(time.Hour)
	assert.Equal(t, 1, f.remote.CallCount("resume"))
}

func TestArbitrator_StaleTimerIsIgnored(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())

	f.announce(domain.PrayerDzuhur)
	f.endAdzan(t)
	first := f.arb.timer
	require.NotNil(t, first)
	require.True(t, f.arb.Dismiss())

	f.clock.Advance(time.Minute)
	f.announce(domain.PrayerAshar)
	f.endAdzan(t)

	// A firing from the first countdown must not end the second one.
	f.arb.onIqomahTimer(f.arb.gen - 1)
	assert.Equal(t, domain.StatusIqomahCountdown, f.arb.Status())

	f.clock.Advance(9 * time.Minute)
	assert.Equal(t, domain.StatusIqomahCountdown, f.arb.Status())

	f.clock.Advance(time.Minute)
	assert.Equal(t, domain.StatusIdle, f.arb.Status())
}

func TestArbitrator_ZeroIqomahDelayEndsImmediately(t *testing.T) {
	f := newArbFixture(t, ArbitratorConfig{IqomahDelay: 0})
	f.playRemote(t)

	f.announce(domain.PrayerDzuhur)
	f.endAdzan(t)

	assert.Equal(t, domain.StatusIdle, f.arb.Status())
	assert.Zero(t, f.clock.PendingTimers())
	assert.Equal(t, 1, f.remote.CallCount("resume"))
	assert.Equal(t, []domain.PlaybackStatus{
		domain.StatusAnnouncementPlaying,
		domain.StatusWaitingForIqomah,
		domain.StatusIdle,
	}, f.statusTrail())
}

func TestArbitrator_AnnouncementAudioFailureStillCountsDown(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.engine.SetFailLoad(true)

	f.announce(domain.PrayerDzuhur)

	assert.Equal(t, domain.StatusIqomahCountdown, f.arb.Status())
	assert.NotEmpty(t, f.notes.Messages())
}

func TestArbitrator_AdLifecycleResumesLocal(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playLocal(t, "local:track:a.mp3")

	require.NoError(t, f.arb.PlayAd(context.Background(), "local:ads:promo.mp3"))

	assert.Equal(t, domain.StatusAdvertisementPlaying, f.arb.Status())
	assert.Equal(t, domain.EnginePaused, f.localStatus("/music/a.mp3"))
	volume, _ := f.engine.VolumeOf("/ads/promo.mp3")
	assert.Equal(t, DefaultAdVolume, volume)
	assert.Len(t, f.eventsOf(domain.EventAdStarted), 1)

	require.NoError(t, f.engine.SimulateEnd("/ads/promo.mp3"))
	f.ads.tick()

	assert.Equal(t, domain.StatusIdle, f.arb.Status())
	assert.Equal(t, domain.EnginePlaying, f.localStatus("/music/a.mp3"))
	ended := f.eventsOf(domain.EventAdEnded)
	require.Len(t, ended, 1)
	assert.False(t, ended[0].(domain.AdEndedEvent).Forced)
	assert.Equal(t, "local:ads:promo.mp3", ended[0].(domain.AdEndedEvent).AdID)
}

func TestArbitrator_StopAdResumesRemote(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)

	require.NoError(t, f.arb.PlayAd(context.Background(), "local:ads:promo.mp3"))
	require.True(t, f.arb.StopAd())

	assert.Equal(t, domain.StatusIdle, f.arb.Status())
	assert.False(t, f.ads.Active())
	assert.Equal(t, 1, f.remote.CallCount("resume"))
	assert.False(t, f.arb.StopAd())
}

func TestArbitrator_SecondAdRejected(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())

	require.NoError(t, f.arb.PlayAd(context.Background(), "local:ads:a.mp3"))
	err := f.arb.PlayAd(context.Background(), "local:ads:b.mp3")

	assert.ErrorIs(t, err, domain.ErrAdvertisementInProgress)
	assert.Equal(t, domain.StatusAdvertisementPlaying, f.arb.Status())
	assert.Equal(t, "local:ads:a.mp3", f.arb.Interruption().Label)
	_, loaded := f.engine.StatusOf("/ads/b.mp3")
	assert.False(t, loaded)

	expected := `
# HELP adzantune_commands_rejected_total Normal playback commands rejected during an interruption
# TYPE adzantune_commands_rejected_total counter
adzantune_commands_rejected_total{reason="advertisement"} 1
`
	assert.NoError(t, promtest.GatherAndCompare(f.registry, strings.NewReader(expected), "adzantune_commands_rejected_total"))
}

func TestArbitrator_AdRejectedDuringPrayer(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.announce(domain.PrayerDzuhur)

	err := f.arb.PlayAd(context.Background(), "local:ads:a.mp3")
	assert.ErrorIs(t, err, domain.ErrPrayerInProgress)

	f.endAdzan(t)
	err = f.arb.PlayAd(context.Background(), "local:ads:a.mp3")
	assert.ErrorIs(t, err, domain.ErrPrayerInProgress)
	assert.Equal(t, domain.StatusIqomahCountdown, f.arb.Status())
	assert.Contains(t, f.notes.Messages(), "warning: Prayer time is in progress")
}

func TestArbitrator_AdFailureFinishesImmediately(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)

	f.engine.SetFailPlay(true)
	err := f.arb.PlayAd(context.Background(), "local:ads:promo.mp3")

	assert.Error(t, err)
	assert.Equal(t, domain.StatusIdle, f.arb.Status())
	assert.Equal(t, 1, f.remote.CallCount("resume"))
	assert.Empty(t, f.eventsOf(domain.EventAdStarted))
	assert.Len(t, f.eventsOf(domain.EventAdEnded), 1)
}

func TestArbitrator_AdRequiresAdIdentifier(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())

	var validation *domain.ValidationError
	assert.ErrorAs(t, f.arb.PlayAd(context.Background(), "local:track:a.mp3"), &validation)
	assert.Equal(t, domain.StatusIdle, f.arb.Status())
}

func TestArbitrator_DismissAd(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())

	require.NoError(t, f.arb.PlayAd(context.Background(), "local:ads:promo.mp3"))
	require.True(t, f.arb.Dismiss())
	assert.Equal(t, domain.StatusIdle, f.arb.Status())
	assert.False(t, f.arb.Dismiss())
}

func TestArbitrator_CommandsRejectedDuringInterruption(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playLocal(t, "local:track:a.mp3", "local:track:b.mp3")
	ctx := context.Background()

	f.announce(domain.PrayerDzuhur)
	before := f.queue.State()
	normalBefore := f.arb.Normal()

	commands := map[string]func() error{
		"play":    func() error { return f.arb.Play(ctx, domain.PlayRequest{ItemID: "local:track:c.mp3"}) },
		"pause":   func() error { return f.arb.Pause(ctx) },
		"resume":  func() error { return f.arb.Resume(ctx) },
		"toggle":  func() error { return f.arb.TogglePlay(ctx) },
		"next":    func() error { return f.arb.Next(ctx) },
		"prev":    func() error { return f.arb.Previous(ctx) },
		"seek":    func() error { return f.arb.Seek(ctx, time.Second) },
		"volume":  func() error { return f.arb.SetVolume(ctx, 0.2) },
		"shuffle": func() error { _, err := f.arb.ToggleShuffle(ctx); return err },
		"repeat":  func() error { _, err := f.arb.ToggleRepeat(ctx); return err },
	}
	for name, command := range commands {
		assert.ErrorIs(t, command(), domain.ErrPrayerInProgress, name)
	}

	assert.Equal(t, before, f.queue.State())
	assert.Equal(t, normalBefore, f.arb.Normal())
	assert.Equal(t, domain.StatusAnnouncementPlaying, f.arb.Status())
	assert.Equal(t, 0.8, f.local.Volume())
	assert.Len(t, f.notes.Messages(), len(commands))

	require.True(t, f.arb.Dismiss())
	require.NoError(t, f.arb.PlayAd(ctx, "local:ads:promo.mp3"))
	assert.ErrorIs(t, f.arb.Next(ctx), domain.ErrAdvertisementInProgress)
}

func TestArbitrator_LocalPlayPausesRemoteFirst(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)

	pausesAtLocalStart := -1
	f.bus.Subscribe(domain.EventTrackStarted, func(domain.Event) {
		pausesAtLocalStart = f.remote.CallCount("pause")
	})

	require.NoError(t, f.arb.Play(context.Background(), domain.PlayRequest{ItemID: "local:track:a.mp3"}))

	assert.Equal(t, 1, pausesAtLocalStart, "remote must be paused before local starts")
	assert.Equal(t, domain.SourceLocal, f.queue.State().Source)
	assert.True(t, f.arb.Normal().WasLocalPlaying())
	assert.Equal(t, "local:track:a.mp3", f.memory.Get().LastPlayedItem)
}

func TestArbitrator_RemotePlayStopsLocal(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playLocal(t, "local:track:a.mp3")

	f.playRemote(t)

	assert.Equal(t, 0, f.engine.GetLoadedTracks())
	assert.Contains(t, f.remote.Calls(), "play_items:dev-1:"+remoteTrack+":")
	assert.Equal(t, domain.SourceRemote, f.queue.State().Source)
}

func TestArbitrator_RemoteCapabilityChecks(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	ctx := context.Background()

	f.remote.SetReadiness(domain.RemoteReadiness{Ready: false, Premium: true})
	assert.ErrorIs(t, f.arb.Play(ctx, domain.PlayRequest{ItemID: remoteTrack}), domain.ErrRemoteNotReady)

	f.remote.SetReadiness(domain.RemoteReadiness{Ready: true, Premium: false, DeviceID: "dev-1"})
	assert.ErrorIs(t, f.arb.Play(ctx, domain.PlayRequest{ContextID: "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M"}), domain.ErrUpgradeRequired)

	assert.Empty(t, f.remote.Calls(), "capability checks run before any network call")
	assert.Equal(t, domain.NormalNone, f.arb.Normal().Kind)
}

func TestArbitrator_RemoteContextAppliesModes(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.queue.SetShuffle(true)
	f.queue.SetRepeat(domain.RepeatAll)

	require.NoError(t, f.arb.Play(context.Background(), domain.PlayRequest{
		ContextID: "spotify:album:1DFixLWuPkv3KT3TnV35m3",
		OffsetID:  remoteTrack,
	}))

	assert.Equal(t, []string{
		"shuffle:dev-1:true",
		"repeat:dev-1:context",
		"play_context:dev-1:spotify:album:1DFixLWuPkv3KT3TnV35m3:" + remoteTrack,
	}, f.remote.Calls())
	assert.Equal(t, "spotify:album:1DFixLWuPkv3KT3TnV35m3", f.memory.Get().LastPlayedContext)
}

func TestArbitrator_UnauthorizedSetsNeedsLogin(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.remote.Fail("play_items", domain.NewRemoteError("play_items", 401, errors.New("token expired")))

	err := f.arb.Play(context.Background(), domain.PlayRequest{ItemID: remoteTrack})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.True(t, f.arb.NeedsLogin())
	assert.Len(t, f.eventsOf(domain.EventAuthRequired), 1)
	assert.Contains(t, f.notes.Messages(), "error: Remote login required")
	assert.Equal(t, domain.NormalNone, f.arb.Normal().Kind)

	f.remote.Fail("play_items", nil)
	_, err = f.arb.ConnectRemote(context.Background())
	require.NoError(t, err)
	assert.False(t, f.arb.NeedsLogin())
}

func TestArbitrator_EmptyPlayUsesMemory(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	ctx := context.Background()

	assert.ErrorIs(t, f.arb.Play(ctx, domain.PlayRequest{}), domain.ErrNothingToPlay)

	f.memory.RecordItem(ctx, "local:track:b.mp3", "")
	require.NoError(t, f.arb.Play(ctx, domain.PlayRequest{}))
	assert.Equal(t, "local:track:b.mp3", f.local.CurrentItem())

	f.memory.RecordItem(ctx, "", "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M")
	require.NoError(t, f.arb.Play(ctx, domain.PlayRequest{}))
	assert.Contains(t, f.remote.Calls(), "play_context:dev-1:spotify:playlist:37i9dQZF1DXcBWIGoYBM5M:")
}

func TestArbitrator_ResumeWithNothingLoadedUsesMemory(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.memory.RecordItem(context.Background(), "local:track:b.mp3", "")

	require.NoError(t, f.arb.TogglePlay(context.Background()))
	assert.Equal(t, "local:track:b.mp3", f.local.CurrentItem())

	require.NoError(t, f.arb.TogglePlay(context.Background()))
	assert.Equal(t, domain.EnginePaused, f.localStatus("/music/b.mp3"))
	assert.True(t, f.arb.Normal().Paused)
}

func TestArbitrator_NextPreviousThroughQueue(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	ctx := context.Background()
	f.playLocal(t, "local:track:a.mp3", "local:track:b.mp3", "local:track:c.mp3")

	require.NoError(t, f.arb.Next(ctx))
	assert.Equal(t, "local:track:b.mp3", f.local.CurrentItem())

	require.NoError(t, f.arb.Previous(ctx))
	assert.Equal(t, "local:track:a.mp3", f.local.CurrentItem())

	require.NoError(t, f.arb.Previous(ctx), "queue exhaustion is not an error")
	assert.Equal(t, "local:track:a.mp3", f.local.CurrentItem())
}

func TestArbitrator_NextUsesRemoteNativeSkip(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)
	cursor := f.queue.State().Cursor

	require.NoError(t, f.arb.Next(context.Background()))
	require.NoError(t, f.arb.Previous(context.Background()))

	assert.Contains(t, f.remote.Calls(), "next:dev-1")
	assert.Contains(t, f.remote.Calls(), "previous:dev-1")
	assert.Equal(t, cursor, f.queue.State().Cursor)
}

func TestArbitrator_LocalNaturalEndAdvancesQueue(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playLocal(t, "local:track:a.mp3", "local:track:b.mp3")

	require.NoError(t, f.engine.SimulateEnd("/music/a.mp3"))
	f.local.tick()
	assert.Equal(t, "local:track:b.mp3", f.local.CurrentItem())
	assert.True(t, f.arb.Normal().WasLocalPlaying())

	require.NoError(t, f.engine.SimulateEnd("/music/b.mp3"))
	f.local.tick()
	assert.Equal(t, domain.NormalNone, f.arb.Normal().Kind)
}

func TestArbitrator_LocalEndDuringAdvertisementPlaysNextOnResume(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	ctx := context.Background()
	f.playLocal(t, "local:track:a.mp3", "local:track:b.mp3")

	require.NoError(t, f.engine.SimulateEnd("/music/a.mp3"))
	require.NoError(t, f.arb.PlayAd(ctx, "local:ads:promo.mp3"))
	f.local.tick()

	assert.Equal(t, domain.StatusAdvertisementPlaying, f.arb.Status())
	assert.Equal(t, 1, f.queue.State().Cursor)

	require.True(t, f.arb.StopAd())
	assert.Equal(t, "local:track:b.mp3", f.local.CurrentItem())
	assert.Equal(t, domain.EnginePlaying, f.localStatus("/music/b.mp3"))
	assert.True(t, f.arb.Normal().WasLocalPlaying())
}

func TestArbitrator_LocalEndSeenAfterResumeStillAdvances(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	ctx := context.Background()
	f.playLocal(t, "local:track:a.mp3", "local:track:b.mp3")

	require.NoError(t, f.engine.SimulateEnd("/music/a.mp3"))
	require.NoError(t, f.arb.PlayAd(ctx, "local:ads:promo.mp3"))
	require.True(t, f.arb.StopAd())

	assert.NotEqual(t, domain.EnginePlaying, f.localStatus("/music/a.mp3"), "a finished item is not replayed")
	assert.Empty(t, f.notes.Messages())

	f.local.tick()
	assert.Equal(t, "local:track:b.mp3", f.local.CurrentItem())
	assert.Equal(t, 1, f.queue.State().Cursor)
}

func TestArbitrator_QueueFinishedDuringInterruption(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playLocal(t, "local:track:a.mp3")

	require.NoError(t, f.engine.SimulateEnd("/music/a.mp3"))
	f.announce(domain.PrayerIsya)
	f.local.tick()

	ic := f.arb.Interruption()
	require.NotNil(t, ic)
	assert.Equal(t, domain.NormalNone, ic.Snapshot.Kind)

	f.endAdzan(t)
	require.True(t, f.arb.Dismiss())
	assert.Equal(t, domain.NormalNone, f.arb.Normal().Kind)
	assert.NotEqual(t, domain.EnginePlaying, f.localStatus("/music/a.mp3"))
}

func TestArbitrator_AnnouncementDuringRemotePauseAbortsLocalPlay(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)

	announced := false
	f.remote.OnCall("pause", func() {
		if !announced {
			announced = true
			f.announce(domain.PrayerMaghrib)
		}
	})

	err := f.arb.Play(context.Background(), domain.PlayRequest{ItemID: "local:track:a.mp3"})

	assert.ErrorIs(t, err, domain.ErrPrayerInProgress)
	assert.Equal(t, domain.StatusAnnouncementPlaying, f.arb.Status())
	assert.Equal(t, domain.EnginePlaying, f.localStatus(adzanPath))
	assert.Empty(t, f.local.CurrentItem(), "the local item never starts over the adzan")

	ic := f.arb.Interruption()
	require.NotNil(t, ic)
	assert.True(t, ic.Snapshot.WasRemotePlaying())
	assert.True(t, f.arb.Normal().Paused)
}

func TestArbitrator_AnnouncementDuringRemoteStartSilencesDevice(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	ctx := context.Background()

	announced := false
	f.remote.OnCall("play_items", func() {
		if !announced {
			announced = true
			f.announce(domain.PrayerSubuh)
		}
	})

	require.NoError(t, f.arb.Play(ctx, domain.PlayRequest{ItemID: remoteTrack}))

	assert.Equal(t, domain.StatusAnnouncementPlaying, f.arb.Status())
	st, err := f.remote.State(ctx)
	require.NoError(t, err)
	assert.False(t, st.Playing, "the device started after the pause and must be paused again")

	calls := f.remote.Calls()
	assert.Equal(t, "pause:dev-1", calls[len(calls)-1])

	ic := f.arb.Interruption()
	require.NotNil(t, ic)
	assert.True(t, ic.Snapshot.WasRemotePlaying())
}

func TestArbitrator_RemoteListSkipsLocalItems(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	other := "spotify:track:6rqhFgbbKwnb9MLmUQDhG6"

	require.NoError(t, f.arb.Play(context.Background(), domain.PlayRequest{
		Items:      []string{"local:track:a.mp3", remoteTrack, "local:ads:promo.mp3", other},
		StartIndex: 1,
	}))

	assert.Equal(t, []string{
		"play_items:dev-1:" + remoteTrack + "," + other + ":" + remoteTrack,
	}, f.remote.Calls())
}

func TestArbitrator_StartAnnouncementReportsOutcome(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())

	assert.True(t, f.arb.StartAnnouncement(domain.PrayerDzuhur))
	assert.False(t, f.arb.StartAnnouncement(domain.PrayerAshar))
	assert.Equal(t, domain.PrayerDzuhur, f.arb.Interruption().Label)

	require.True(t, f.arb.Dismiss())
	require.NoError(t, f.arb.PlayAd(context.Background(), "local:ads:promo.mp3"))
	assert.False(t, f.arb.StartAnnouncement(domain.PrayerAshar))
	assert.Equal(t, domain.StatusAdvertisementPlaying, f.arb.Status())
}

func TestArbitrator_ToggleModes(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playRemote(t)
	ctx := context.Background()

	shuffle, err := f.arb.ToggleShuffle(ctx)
	require.NoError(t, err)
	assert.True(t, shuffle)

	mode, err := f.arb.ToggleRepeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RepeatAll, mode)

	mode, err = f.arb.ToggleRepeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RepeatOne, mode)
	assert.True(t, f.local.repeatOne)

	assert.Contains(t, f.remote.Calls(), "shuffle:dev-1:true")
	assert.Contains(t, f.remote.Calls(), "repeat:dev-1:track")
	assert.True(t, f.memory.Get().Shuffle)
	assert.Equal(t, domain.RepeatOne, f.memory.Get().Repeat)
}

func TestArbitrator_SeekAndVolume(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	ctx := context.Background()

	assert.ErrorIs(t, f.arb.Seek(ctx, time.Second), domain.ErrNothingToPlay)

	f.playRemote(t)
	require.NoError(t, f.arb.Seek(ctx, 90*time.Second))
	require.NoError(t, f.arb.SetVolume(ctx, 0.35))
	assert.ErrorIs(t, f.arb.SetVolume(ctx, 2), domain.ErrInvalidVolume)

	assert.Contains(t, f.remote.Calls(), "seek:dev-1:90000")
	assert.Contains(t, f.remote.Calls(), "volume:dev-1:35")
	assert.Equal(t, 0.35, f.local.Volume())
}

func TestArbitrator_TriggerAnnouncement(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())

	require.NoError(t, f.arb.TriggerAnnouncement(""))
	assert.Equal(t, "Manual", f.arb.Interruption().Label)
	assert.ErrorIs(t, f.arb.TriggerAnnouncement("again"), domain.ErrPrayerInProgress)

	require.True(t, f.arb.Dismiss())
	require.NoError(t, f.arb.PlayAd(context.Background(), "local:ads:promo.mp3"))
	assert.ErrorIs(t, f.arb.TriggerAnnouncement(domain.PrayerAshar), domain.ErrAdvertisementInProgress)
}

func TestArbitrator_ObserveRemote(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	ctx := context.Background()

	f.arb.ObserveRemote(ctx, domain.RemoteState{Playing: true, DeviceID: "dev-2", ItemURI: remoteTrack})
	normal := f.arb.Normal()
	assert.True(t, normal.WasRemotePlaying())
	assert.Equal(t, "dev-2", normal.DeviceID)
	assert.Equal(t, remoteTrack, f.memory.Get().LastPlayedItem)

	f.arb.ObserveRemote(ctx, domain.RemoteState{Playing: false, DeviceID: "dev-2", ItemURI: remoteTrack})
	assert.True(t, f.arb.Normal().Paused)
}

func TestArbitrator_ObserveRemoteIgnoredWhileLocal(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playLocal(t, "local:track:a.mp3")

	f.arb.ObserveRemote(context.Background(), domain.RemoteState{Playing: true, DeviceID: "dev-1", ItemURI: remoteTrack})

	assert.True(t, f.arb.Normal().WasLocalPlaying())
	assert.Equal(t, "local:track:a.mp3", f.memory.Get().LastPlayedItem)
}

func TestArbitrator_Restore(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.memory.RecordModes(context.Background(), true, domain.RepeatOne)

	f.arb.Restore()

	assert.True(t, f.queue.Shuffle())
	assert.Equal(t, domain.RepeatOne, f.queue.Repeat())
	assert.True(t, f.local.repeatOne)
}

func TestArbitrator_LocalProgressUpdatesMemory(t *testing.T) {
	f := newArbFixture(t, defaultArbConfig())
	f.playLocal(t, "local:track:a.mp3")

	require.NoError(t, f.engine.SimulateProgress(f.local.handle, 42*time.Second))
	f.local.tick()

	mem := f.memory.Get()
	assert.Equal(t, int64(42000), mem.PositionMs)
	assert.Equal(t, mock.DefaultDuration.Milliseconds(), mem.DurationMs)
}

func TestArbitrator_ShutdownLeavesNoGoroutines(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	t.Run("cycle", func(t *testing.T) {
		f := newArbFixture(t, defaultArbConfig())
		f.playRemote(t)
		f.announce(domain.PrayerDzuhur)
		f.endAdzan(t)
	})
}
