package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
	"github.com/tejashwikalptaru/adzantune/internal/telemetry"
)

const (
	// DefaultAdVolume is the volume advertisement clips play at.
	DefaultAdVolume = 0.5

	// DefaultIqomahDelay is the countdown between the adzan and the prayer.
	DefaultIqomahDelay = 10 * time.Minute
)

// ArbitratorConfig holds the interruption settings.
type ArbitratorConfig struct {
	AnnouncementPath   string
	AnnouncementVolume float64
	AdVolume           float64
	IqomahDelay        time.Duration

	// ResumeOnDismiss makes dismissing a playing announcement resume the
	// interrupted playback, like the end of the iqomah countdown does.
	ResumeOnDismiss bool
}

// ArbitratorDeps are the collaborators the arbitrator drives.
// Remote may be nil when no remote session is configured.
type ArbitratorDeps struct {
	Logger    *slog.Logger
	Bus       ports.EventBus
	Clock     ports.Clock
	Queue     *QueueEngine
	Local     *LocalPlayer
	Remote    ports.RemoteSession
	Announcer *ClipPlayer
	Ads       *ClipPlayer
	Resolver  ports.PathResolver
	Notifier  ports.Notifier
	Memory    *MemoryService
	Metrics   *telemetry.Metrics
}

// Arbitrator owns the playback status and decides which producer holds the
// speaker. Every transition is one critical section over status, the
// interruption context, the normal playback state and the iqomah timer;
// side effects (publishing, adapter calls) run after the lock is released
// and observe the post-transition status.
type Arbitrator struct {
	logger    *slog.Logger
	bus       ports.EventBus
	clock     ports.Clock
	queue     *QueueEngine
	local     *LocalPlayer
	remote    ports.RemoteSession
	announcer *ClipPlayer
	ads       *ClipPlayer
	resolver  ports.PathResolver
	notifier  ports.Notifier
	memory    *MemoryService
	metrics   *telemetry.Metrics
	cfg       ArbitratorConfig

	runCtx    context.Context
	cancelRun context.CancelFunc
	subs      []domain.SubscriptionID

	mu           sync.Mutex
	status       domain.PlaybackStatus
	interruption *domain.InterruptionContext
	normal       domain.NormalPlaybackState
	timer        ports.Timer
	gen          uint64
	epoch        uint64 // bumped by every interruption
	pendingItem  string // plays on resume after a local end during an interruption
	needsLogin   bool
}

// NewArbitrator wires the arbitrator to the bus and to the local player's
// callbacks. It starts idle with nothing playing.
func NewArbitrator(deps ArbitratorDeps, cfg ArbitratorConfig) *Arbitrator {
	if cfg.AdVolume <= 0 {
		cfg.AdVolume = DefaultAdVolume
	}
	if cfg.AnnouncementVolume <= 0 {
		cfg.AnnouncementVolume = 1.0
	}

	runCtx, cancel := context.WithCancel(context.Background())

	a := &Arbitrator{
		logger:    deps.Logger,
		bus:       deps.Bus,
		clock:     deps.Clock,
		queue:     deps.Queue,
		local:     deps.Local,
		remote:    deps.Remote,
		announcer: deps.Announcer,
		ads:       deps.Ads,
		resolver:  deps.Resolver,
		notifier:  deps.Notifier,
		memory:    deps.Memory,
		metrics:   deps.Metrics,
		cfg:       cfg,
		runCtx:    runCtx,
		cancelRun: cancel,
		status:    domain.StatusIdle,
		normal:    domain.NoPlayback(),
	}

	a.subs = append(a.subs,
		a.bus.Subscribe(domain.EventAnnouncementStart, a.onAnnouncementStart),
		a.bus.Subscribe(domain.EventIqomahStart, a.onIqomahStart),
	)

	a.local.SetOnAdvance(a.onLocalEnded)
	if a.memory != nil {
		a.local.SetOnProgress(func(itemID string, position, duration time.Duration) {
			a.memory.RecordProgress(a.runCtx, itemID, position, duration)
		})
		a.local.SetOnDurationKnown(func(itemID string, duration time.Duration) {
			a.memory.RecordDuration(a.runCtx, itemID, duration)
		})
	}

	a.logger.Debug("arbitrator initialized",
		slog.Duration("iqomah_delay", cfg.IqomahDelay),
		slog.Bool("resume_on_dismiss", cfg.ResumeOnDismiss))

	return a
}

// Status returns the current playback status.
func (a *Arbitrator) Status() domain.PlaybackStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Normal returns the normal playback state.
func (a *Arbitrator) Normal() domain.NormalPlaybackState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.normal
}

// Interruption returns a copy of the active interruption context, or nil.
func (a *Arbitrator) Interruption() *domain.InterruptionContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.interruption == nil {
		return nil
	}
	c := *a.interruption
	return &c
}

// NeedsLogin reports whether the remote credential was rejected.
func (a *Arbitrator) NeedsLogin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.needsLogin
}

// Restore applies the remembered shuffle and repeat modes.
func (a *Arbitrator) Restore() {
	if a.memory == nil {
		return
	}
	mem := a.memory.Get()
	a.queue.SetShuffle(mem.Shuffle)
	a.queue.SetRepeat(mem.Repeat)
	a.local.SetRepeatOne(mem.Repeat == domain.RepeatOne)
}

// TriggerAnnouncement starts an announcement by hand. label defaults to "Manual".
func (a *Arbitrator) TriggerAnnouncement(label string) error {
	if label == "" {
		label = "Manual"
	}

	if a.StartAnnouncement(label) {
		return nil
	}
	if a.Status() == domain.StatusAdvertisementPlaying {
		return domain.ErrAdvertisementInProgress
	}
	return domain.ErrPrayerInProgress
}

// setStatusLocked switches status and returns the previous one.
// Caller must hold a.mu.
func (a *Arbitrator) setStatusLocked(to domain.PlaybackStatus) domain.PlaybackStatus {
	from := a.status
	a.status = to
	return from
}

// beginInterruptionLocked snapshots the normal state into a fresh context and
// marks normal playback paused. Caller must hold a.mu.
func (a *Arbitrator) beginInterruptionLocked(kind domain.InterruptionKind, label string) *domain.InterruptionContext {
	a.epoch++
	a.interruption = &domain.InterruptionContext{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: a.clock.Now(),
		Label:     label,
		Snapshot:  a.normal,
	}
	a.normal = a.normal.WithPaused(true)
	c := *a.interruption
	return &c
}

// endInterruptionLocked consumes the context and restores the snapshot as
// the normal state. Caller must hold a.mu.
func (a *Arbitrator) endInterruptionLocked() domain.InterruptionContext {
	var c domain.InterruptionContext
	if a.interruption != nil {
		c = *a.interruption
		a.normal = c.Snapshot
	}
	a.interruption = nil
	return c
}

func (a *Arbitrator) publishStatus(from, to domain.PlaybackStatus) {
	if from == to {
		return
	}
	a.logger.Info("status changed", slog.String("from", from.String()), slog.String("to", to.String()))
	a.metrics.StatusTransition(from, to)
	a.bus.Publish(domain.NewStatusChangedEvent(from, to))
}

func (a *Arbitrator) onAnnouncementStart(event domain.Event) {
	if e, ok := event.(domain.AnnouncementStartEvent); ok {
		a.StartAnnouncement(e.Prayer)
	}
}

// StartAnnouncement handles idle -> announcementPlaying for prayer. It
// reports whether the announcement started; outside idle it does nothing.
func (a *Arbitrator) StartAnnouncement(prayer string) bool {
	a.mu.Lock()
	if a.status != domain.StatusIdle {
		status := a.status
		a.mu.Unlock()
		a.logger.Warn("announcement ignored", slog.String("prayer", prayer), slog.String("status", status.String()))
		return false
	}
	ic := a.beginInterruptionLocked(domain.InterruptionAnnouncement, prayer)
	from := a.setStatusLocked(domain.StatusAnnouncementPlaying)
	a.mu.Unlock()

	a.publishStatus(from, domain.StatusAnnouncementPlaying)
	a.pauseProducer(ic.Snapshot)

	id := ic.ID
	err := a.announcer.Play(a.runCtx, a.cfg.AnnouncementPath, a.cfg.AnnouncementVolume, func() {
		a.finishAnnouncement(id)
	})
	if err != nil {
		// Treated as a natural end so the iqomah phase still runs.
		a.logger.Error("announcement audio failed", slog.String("prayer", prayer), slog.Any("error", err))
		a.notifier.Notify(domain.NotifyWarning, fmt.Sprintf("Adzan audio for %s could not play", prayer))
		a.finishAnnouncement(id)
	}
	return true
}

// finishAnnouncement handles the natural end: announcementPlaying -> waitingForIqomah.
func (a *Arbitrator) finishAnnouncement(id string) {
	a.mu.Lock()
	if a.status != domain.StatusAnnouncementPlaying || a.interruption == nil || a.interruption.ID != id {
		a.mu.Unlock()
		return
	}
	prayer := a.interruption.Label
	from := a.setStatusLocked(domain.StatusWaitingForIqomah)
	a.mu.Unlock()

	a.publishStatus(from, domain.StatusWaitingForIqomah)
	a.bus.Publish(domain.NewAnnouncementEndEvent(prayer))
	a.bus.Publish(domain.NewIqomahStartEvent(prayer, a.cfg.IqomahDelay))
}

// onIqomahStart handles waitingForIqomah -> iqomahCountdown.
func (a *Arbitrator) onIqomahStart(event domain.Event) {
	e, ok := event.(domain.IqomahStartEvent)
	if !ok {
		return
	}

	a.mu.Lock()
	if a.status != domain.StatusWaitingForIqomah {
		a.mu.Unlock()
		return
	}

	if e.Delay <= 0 {
		a.endIqomahLocked(false)
		return
	}

	from := a.setStatusLocked(domain.StatusIqomahCountdown)
	a.gen++
	gen := a.gen
	a.timer = a.clock.AfterFunc(e.Delay, func() { a.onIqomahTimer(gen) })
	a.mu.Unlock()

	a.logger.Info("iqomah countdown started", slog.String("prayer", e.Prayer), slog.Duration("delay", e.Delay))
	a.publishStatus(from, domain.StatusIqomahCountdown)
}

func (a *Arbitrator) onIqomahTimer(gen uint64) {
	a.mu.Lock()
	if a.status != domain.StatusIqomahCountdown || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.endIqomahLocked(false)
}

// endIqomahLocked handles iqomahCountdown (or waitingForIqomah) -> idle and
// resumes from the snapshot. Expects a.mu held. Always releases it.
func (a *Arbitrator) endIqomahLocked(forced bool) {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	ic := a.endInterruptionLocked()
	from := a.setStatusLocked(domain.StatusIdle)
	a.mu.Unlock()

	a.publishStatus(from, domain.StatusIdle)
	a.bus.Publish(domain.NewIqomahEndEvent(ic.Label, forced))
	a.resumeProducer(ic.Snapshot)
}

// Dismiss force-stops the active interruption. It reports whether there was
// one. Dismissing a playing announcement skips the iqomah phase and, unless
// ResumeOnDismiss is set, leaves playback paused.
func (a *Arbitrator) Dismiss() bool {
	a.mu.Lock()

	switch a.status {
	case domain.StatusAnnouncementPlaying:
		resume := a.cfg.ResumeOnDismiss
		var ic domain.InterruptionContext
		if resume {
			ic = a.endInterruptionLocked()
		} else {
			if a.interruption != nil {
				ic = *a.interruption
			}
			a.interruption = nil
		}
		from := a.setStatusLocked(domain.StatusIdle)
		a.mu.Unlock()

		a.announcer.Stop()
		a.publishStatus(from, domain.StatusIdle)
		a.bus.Publish(domain.NewAnnouncementStopEvent(ic.Label))
		if resume {
			a.resumeProducer(ic.Snapshot)
		}
		return true

	case domain.StatusWaitingForIqomah, domain.StatusIqomahCountdown:
		a.endIqomahLocked(true)
		return true

	case domain.StatusAdvertisementPlaying:
		a.finishAdLocked(true)
		return true

	default:
		a.mu.Unlock()
		return false
	}
}

// PlayAd interrupts normal playback with an advertisement clip.
func (a *Arbitrator) PlayAd(ctx context.Context, adID string) error {
	if !domain.IsAdItem(adID) {
		return domain.NewValidationError("ad", adID, "not an advertisement identifier")
	}

	a.mu.Lock()
	switch {
	case a.status.IsPrayer():
		a.mu.Unlock()
		a.reject("play_ad", domain.ErrPrayerInProgress)
		return domain.ErrPrayerInProgress
	case a.status == domain.StatusAdvertisementPlaying:
		a.mu.Unlock()
		a.reject("play_ad", domain.ErrAdvertisementInProgress)
		return domain.ErrAdvertisementInProgress
	}
	ic := a.beginInterruptionLocked(domain.InterruptionAdvertisement, adID)
	from := a.setStatusLocked(domain.StatusAdvertisementPlaying)
	a.mu.Unlock()

	a.publishStatus(from, domain.StatusAdvertisementPlaying)
	a.pauseProducer(ic.Snapshot)

	id := ic.ID
	path, err := a.resolver.Resolve(adID)
	if err == nil {
		err = a.ads.Play(ctx, path, a.cfg.AdVolume, func() { a.finishAd(id) })
	}
	if err != nil {
		a.logger.Error("advertisement failed to start", slog.String("ad", adID), slog.Any("error", err))
		a.notifier.Notify(domain.NotifyError, fmt.Sprintf("Advertisement %s could not play", adID))
		a.finishAd(id)
		return fmt.Errorf("play advertisement: %w", err)
	}

	a.logger.Info("advertisement started", slog.String("ad", adID))
	a.bus.Publish(domain.NewAdStartedEvent(adID))
	return nil
}

// StopAd ends the advertisement early. It reports whether one was playing.
func (a *Arbitrator) StopAd() bool {
	a.mu.Lock()
	if a.status != domain.StatusAdvertisementPlaying {
		a.mu.Unlock()
		return false
	}
	a.finishAdLocked(true)
	return true
}

// finishAd handles the natural end of the ad identified by id.
func (a *Arbitrator) finishAd(id string) {
	a.mu.Lock()
	if a.status != domain.StatusAdvertisementPlaying || a.interruption == nil || a.interruption.ID != id {
		a.mu.Unlock()
		return
	}
	a.finishAdLocked(false)
}

// finishAdLocked handles advertisementPlaying -> idle. Expects a.mu held.
// Always releases it.
func (a *Arbitrator) finishAdLocked(forced bool) {
	ic := a.endInterruptionLocked()
	from := a.setStatusLocked(domain.StatusIdle)
	a.mu.Unlock()

	if forced {
		a.ads.Stop()
	}
	a.publishStatus(from, domain.StatusIdle)
	a.bus.Publish(domain.NewAdEndedEvent(ic.Label, forced))
	a.resumeProducer(ic.Snapshot)
}

// pauseProducer silences the producer recorded in snapshot. Failures are
// logged and swallowed.
func (a *Arbitrator) pauseProducer(snapshot domain.NormalPlaybackState) {
	switch {
	case snapshot.WasRemotePlaying():
		if a.remote == nil {
			return
		}
		if err := a.remote.Pause(a.runCtx, snapshot.DeviceID); err != nil {
			a.metrics.RemoteError("pause", err)
			a.logger.Warn("failed to pause remote for interruption", slog.Any("error", err))
		}
	case snapshot.WasLocalPlaying():
		if err := a.local.Pause(); err != nil {
			a.logger.Warn("failed to pause local for interruption", slog.Any("error", err))
		}
	}
}

// resumeProducer resumes the producer recorded in snapshot: the remote
// session on its recorded device, else the local player. A local item that
// ended during the interruption is followed by the deferred next item.
func (a *Arbitrator) resumeProducer(snapshot domain.NormalPlaybackState) {
	switch {
	case snapshot.WasRemotePlaying():
		if a.remote == nil {
			return
		}
		if err := a.remote.Resume(a.runCtx, snapshot.DeviceID); err != nil {
			a.remoteFailed("resume", err)
		}
	case snapshot.WasLocalPlaying():
		if next := a.pending(); next != "" {
			if err := a.playItem(a.runCtx, a.internalTicket("advance"), next); err != nil {
				a.logger.Warn("failed to play deferred item", slog.String("item", next), slog.Any("error", err))
			}
			return
		}
		err := a.local.Resume()
		if errors.Is(err, domain.ErrTrackEnded) {
			a.logger.Debug("interrupted item ended, waiting for the advance")
			return
		}
		if err != nil {
			a.logger.Warn("failed to resume local playback", slog.Any("error", err))
			a.notifier.Notify(domain.NotifyWarning, "Local playback could not resume")
		}
	}
}

// reject reports a command refused because of the current status.
func (a *Arbitrator) reject(op string, reason error) {
	label, message := "advertisement", "An advertisement is playing"
	if errors.Is(reason, domain.ErrPrayerInProgress) {
		label, message = "prayer", "Prayer time is in progress"
	}
	a.logger.Info("command rejected", slog.String("op", op), slog.String("reason", label))
	a.metrics.CommandRejected(label)
	a.notifier.Notify(domain.NotifyWarning, message)
}

// remoteFailed reports a failed remote call. A rejected credential puts the
// arbitrator into the needs-login condition instead of being retried.
func (a *Arbitrator) remoteFailed(op string, err error) {
	a.metrics.RemoteError(op, err)

	if errors.Is(err, domain.ErrUnauthorized) {
		a.mu.Lock()
		already := a.needsLogin
		a.needsLogin = true
		a.mu.Unlock()

		a.logger.Error("remote authorization rejected", slog.String("op", op), slog.Any("error", err))
		if !already {
			a.bus.Publish(domain.NewAuthRequiredEvent(err))
		}
		a.notifier.Notify(domain.NotifyError, "Remote login required")
		return
	}

	a.logger.Warn("remote call failed", slog.String("op", op), slog.Any("error", err))
	a.notifier.Notify(domain.NotifyWarning, fmt.Sprintf("Remote %s failed", op))
}

// Shutdown detaches from the bus and cancels a pending countdown.
func (a *Arbitrator) Shutdown() {
	for _, id := range a.subs {
		a.bus.Unsubscribe(id)
	}
	a.subs = nil

	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.mu.Unlock()

	a.cancelRun()
}
