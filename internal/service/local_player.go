package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

const (
	// LocalProgressInterval is how often the local player reports its position.
	LocalProgressInterval = 500 * time.Millisecond

	// LocalSettleDelay is how long Stop waits after unloading before the
	// player accepts the next call.
	LocalSettleDelay = 300 * time.Millisecond
)

// LocalState is a point-in-time view of the local player.
type LocalState struct {
	ItemID   string
	Track    *domain.TrackInfo
	Status   domain.EngineStatus
	Position time.Duration
	Duration time.Duration
	Volume   float64
}

// LocalPlayer plays one library item at a time on the local audio engine.
// It reports progress while playing and detects the natural end of an item.
// All operations are thread-safe via sync.RWMutex; calls are serialized.
type LocalPlayer struct {
	// Dependencies (injected)
	logger   *slog.Logger
	engine   ports.AudioEngine
	resolver ports.PathResolver
	bus      ports.EventBus
	clock    ports.Clock

	// State
	itemID           string
	track            *domain.TrackInfo
	handle           domain.TrackHandle
	volume           float64
	repeatOne        bool
	durationReported bool
	settleDelay      time.Duration
	updateInterval   time.Duration

	onAdvance       func()
	onProgress      func(itemID string, position, duration time.Duration)
	onDurationKnown func(itemID string, duration time.Duration)

	// Concurrency control
	mu            sync.RWMutex
	stopUpdate    chan struct{}
	updateRunning bool
	updateWg      sync.WaitGroup
	manualStop    bool // True if playback was stopped or replaced on purpose
	hasPlayed     bool // True once the current item has been started
}

// NewLocalPlayer creates a local player and starts its progress routine.
// The clock drives only the progress ticker.
func NewLocalPlayer(
	logger *slog.Logger,
	engine ports.AudioEngine,
	resolver ports.PathResolver,
	bus ports.EventBus,
	clock ports.Clock,
	volume float64,
) *LocalPlayer {
	p := &LocalPlayer{
		logger:         logger,
		engine:         engine,
		resolver:       resolver,
		bus:            bus,
		clock:          clock,
		handle:         domain.InvalidTrackHandle,
		volume:         volume,
		settleDelay:    LocalSettleDelay,
		updateInterval: LocalProgressInterval,
		stopUpdate:     make(chan struct{}),
	}

	logger.Debug("local player initialized", slog.Float64("volume", volume))

	p.startUpdateRoutine()

	return p
}

// SetOnAdvance registers the callback run when an item ends naturally and
// repeat-one is off.
func (p *LocalPlayer) SetOnAdvance(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAdvance = fn
}

// SetOnProgress registers the callback run on every progress tick.
func (p *LocalPlayer) SetOnProgress(fn func(itemID string, position, duration time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onProgress = fn
}

// SetOnDurationKnown registers the callback run once per item when the engine
// first reports a duration.
func (p *LocalPlayer) SetOnDurationKnown(fn func(itemID string, duration time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDurationKnown = fn
}

// Play resolves itemID, loads it and plays it from the beginning.
// Whatever was playing before is stopped first.
func (p *LocalPlayer) Play(ctx context.Context, itemID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()

	var events []domain.Event
	if stopped := p.stopLocked(); stopped != nil {
		events = append(events, stopped)
	}

	path, err := p.resolver.Resolve(itemID)
	if err != nil {
		p.mu.Unlock()
		p.publishAll(events)
		p.logger.Warn("cannot resolve local item", slog.String("item", itemID), slog.Any("error", err))
		p.bus.Publish(domain.NewTrackErrorEvent(itemID, err))
		return err
	}

	handle, err := p.loadLocked(path)
	if err != nil {
		p.mu.Unlock()
		p.publishAll(events)
		p.logger.Warn("failed to start local item", slog.String("item", itemID), slog.Any("error", err))
		p.bus.Publish(domain.NewTrackErrorEvent(itemID, err))
		return err
	}

	track := &domain.TrackInfo{ItemID: itemID, FilePath: path}
	if meta, metaErr := p.engine.GetMetadata(path); metaErr == nil {
		track.Title = meta.Title
		track.Artist = meta.Artist
		track.Album = meta.Album
	}

	p.itemID = itemID
	p.track = track
	p.handle = handle
	p.manualStop = false
	p.hasPlayed = true
	p.durationReported = false

	durationCallback, duration := p.checkDurationLocked()
	track.Duration = duration
	started := *track
	p.mu.Unlock()

	p.logger.Info("local playback started", slog.String("item", itemID), slog.String("title", started.Title))

	p.publishAll(events)
	p.bus.Publish(domain.NewTrackStartedEvent(started))
	if durationCallback != nil {
		durationCallback(itemID, duration)
	}

	return nil
}

// loadLocked loads, sets the volume and plays path. On failure nothing stays
// loaded. Caller must hold the write lock.
func (p *LocalPlayer) loadLocked(path string) (domain.TrackHandle, error) {
	handle, err := p.engine.Load(path)
	if err != nil {
		return domain.InvalidTrackHandle, err
	}

	if err := p.engine.SetVolume(handle, p.volume); err != nil {
		p.unloadQuietly(handle)
		return domain.InvalidTrackHandle, err
	}

	if err := p.engine.Play(handle); err != nil {
		p.unloadQuietly(handle)
		return domain.InvalidTrackHandle, err
	}

	return handle, nil
}

func (p *LocalPlayer) unloadQuietly(handle domain.TrackHandle) {
	if err := p.engine.Unload(handle); err != nil {
		p.logger.Warn("failed to unload track", slog.Any("error", err))
	}
}

// checkDurationLocked returns the duration callback when the duration became
// known and has not been reported for this item. Caller must hold the write lock.
func (p *LocalPlayer) checkDurationLocked() (func(string, time.Duration), time.Duration) {
	duration, err := p.engine.Duration(p.handle)
	if err != nil || duration <= 0 {
		return nil, 0
	}
	if p.track != nil {
		p.track.Duration = duration
	}
	if p.durationReported {
		return nil, duration
	}
	p.durationReported = true
	return p.onDurationKnown, duration
}

// Pause pauses the current item, keeping its position.
func (p *LocalPlayer) Pause() error {
	p.mu.Lock()

	if p.handle == domain.InvalidTrackHandle {
		p.mu.Unlock()
		return domain.ErrNoTrackLoaded
	}

	position, err := p.engine.Position(p.handle)
	if err != nil {
		position = 0
	}

	if err := p.engine.Pause(p.handle); err != nil {
		p.mu.Unlock()
		return err
	}

	track := *p.track
	p.mu.Unlock()

	p.bus.Publish(domain.NewTrackPausedEvent(track, position))
	return nil
}

// Resume continues the current item.
func (p *LocalPlayer) Resume() error {
	p.mu.Lock()

	if p.handle == domain.InvalidTrackHandle {
		p.mu.Unlock()
		return domain.ErrNoTrackLoaded
	}

	status, err := p.engine.Status(p.handle)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if status == domain.EnginePlaying {
		p.mu.Unlock()
		return nil
	}
	// Left for the progress routine to report as a natural end
	if status == domain.EngineStopped && p.hasPlayed && !p.manualStop {
		p.mu.Unlock()
		return domain.ErrTrackEnded
	}

	if err := p.engine.Play(p.handle); err != nil {
		itemID := p.itemID
		p.mu.Unlock()
		p.bus.Publish(domain.NewTrackErrorEvent(itemID, err))
		return err
	}
	p.manualStop = false
	p.hasPlayed = true

	track := *p.track
	p.mu.Unlock()

	p.bus.Publish(domain.NewTrackStartedEvent(track))
	return nil
}

// Stop stops and unloads the current item, then waits for the output to
// settle before returning.
func (p *LocalPlayer) Stop() error {
	p.mu.Lock()
	stopped := p.stopLocked()
	if stopped != nil && p.settleDelay > 0 {
		time.Sleep(p.settleDelay)
	}
	p.mu.Unlock()

	if stopped != nil {
		p.bus.Publish(stopped)
	}
	return nil
}

// stopLocked unloads the current item and returns the event to publish once
// the lock is released, or nil if nothing was loaded.
// Caller must hold the write lock.
func (p *LocalPlayer) stopLocked() domain.Event {
	if p.handle == domain.InvalidTrackHandle {
		return nil
	}

	p.manualStop = true
	p.hasPlayed = false

	if err := p.engine.Stop(p.handle); err != nil {
		p.logger.Warn("failed to stop local item", slog.String("item", p.itemID), slog.Any("error", err))
	}

	var event domain.Event
	if p.track != nil {
		event = domain.NewTrackStoppedEvent(*p.track)
	}

	p.handle = domain.InvalidTrackHandle
	p.track = nil
	p.itemID = ""

	return event
}

// Seek moves the current item to position.
func (p *LocalPlayer) Seek(position time.Duration) error {
	p.mu.Lock()

	if p.handle == domain.InvalidTrackHandle {
		p.mu.Unlock()
		return domain.ErrNoTrackLoaded
	}

	if err := p.engine.Seek(p.handle, position); err != nil {
		p.mu.Unlock()
		return err
	}

	duration, err := p.engine.Duration(p.handle)
	if err != nil {
		duration = 0
	}
	itemID := p.itemID
	p.mu.Unlock()

	p.bus.Publish(domain.NewTrackProgressEvent(itemID, position, duration))
	return nil
}

// SetVolume sets the local output volume (0.0 to 1.0).
func (p *LocalPlayer) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return domain.ErrInvalidVolume
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = volume

	if p.handle != domain.InvalidTrackHandle {
		if err := p.engine.SetVolume(p.handle, volume); err != nil {
			return err
		}
	}

	return nil
}

// Volume returns the local output volume.
func (p *LocalPlayer) Volume() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// SetRepeatOne makes a natural end restart the same item.
func (p *LocalPlayer) SetRepeatOne(repeat bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repeatOne = repeat
}

// IsPlaying reports whether the engine is currently sounding an item.
func (p *LocalPlayer) IsPlaying() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.handle == domain.InvalidTrackHandle {
		return false
	}
	status, err := p.engine.Status(p.handle)
	return err == nil && status == domain.EnginePlaying
}

// CurrentItem returns the loaded item identifier, or "".
func (p *LocalPlayer) CurrentItem() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.itemID
}

// State returns the current local playback state.
func (p *LocalPlayer) State() LocalState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	state := LocalState{
		ItemID: p.itemID,
		Status: domain.EngineStopped,
		Volume: p.volume,
	}

	if p.track != nil {
		track := *p.track
		state.Track = &track
	}

	if p.handle != domain.InvalidTrackHandle {
		if status, err := p.engine.Status(p.handle); err == nil {
			state.Status = status
		}
		if position, err := p.engine.Position(p.handle); err == nil {
			state.Position = position
		}
		if duration, err := p.engine.Duration(p.handle); err == nil {
			state.Duration = duration
		}
	}

	return state
}

// Shutdown stops the progress routine and the current item.
func (p *LocalPlayer) Shutdown() error {
	p.mu.Lock()
	if p.updateRunning {
		close(p.stopUpdate)
		p.updateRunning = false
	}
	p.mu.Unlock()

	p.updateWg.Wait()

	p.mu.Lock()
	stopped := p.stopLocked()
	p.mu.Unlock()

	if stopped != nil {
		p.bus.Publish(stopped)
	}
	return nil
}

func (p *LocalPlayer) startUpdateRoutine() {
	p.mu.Lock()
	if p.updateRunning {
		p.mu.Unlock()
		return
	}
	p.updateRunning = true
	p.updateWg.Add(1)
	p.mu.Unlock()

	ticker := p.clock.NewTicker(p.updateInterval)

	go func() {
		defer p.updateWg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-p.stopUpdate:
				return

			case <-ticker.C():
				p.tick()
			}
		}
	}()
}

// tick publishes progress while playing and handles a natural end.
func (p *LocalPlayer) tick() {
	p.mu.Lock()

	if p.handle == domain.InvalidTrackHandle {
		p.mu.Unlock()
		return
	}

	status, err := p.engine.Status(p.handle)
	if err != nil {
		p.mu.Unlock()
		return
	}

	position, err := p.engine.Position(p.handle)
	if err != nil {
		p.mu.Unlock()
		return
	}

	durationCallback, duration := p.checkDurationLocked()
	itemID := p.itemID
	onProgress := p.onProgress
	finished := status == domain.EngineStopped && p.hasPlayed && !p.manualStop

	if !finished {
		p.mu.Unlock()

		if durationCallback != nil {
			durationCallback(itemID, duration)
		}
		if status == domain.EnginePlaying {
			p.bus.Publish(domain.NewTrackProgressEvent(itemID, position, duration))
			if onProgress != nil {
				onProgress(itemID, position, duration)
			}
		}
		return
	}

	p.handleFinishedWithLock(durationCallback, duration)
}

// handleFinishedWithLock runs when the current item ends naturally.
// Expects the write lock held on entry. Always releases it before returning.
func (p *LocalPlayer) handleFinishedWithLock(durationCallback func(string, time.Duration), duration time.Duration) {
	p.hasPlayed = false
	itemID := p.itemID

	if p.repeatOne {
		err := p.engine.Play(p.handle)
		if err == nil {
			p.hasPlayed = true
		}
		var track domain.TrackInfo
		if p.track != nil {
			track = *p.track
		}
		p.mu.Unlock()

		if durationCallback != nil {
			durationCallback(itemID, duration)
		}
		if err != nil {
			p.logger.Warn("failed to restart local item", slog.String("item", itemID), slog.Any("error", err))
			p.bus.Publish(domain.NewTrackErrorEvent(itemID, err))
			return
		}
		p.logger.Debug("local item restarted", slog.String("item", itemID))
		p.bus.Publish(domain.NewTrackStartedEvent(track))
		return
	}

	onAdvance := p.onAdvance
	p.mu.Unlock()

	if durationCallback != nil {
		durationCallback(itemID, duration)
	}

	p.logger.Debug("local item finished", slog.String("item", itemID))

	if onAdvance != nil {
		onAdvance()
	}
}

func (p *LocalPlayer) publishAll(events []domain.Event) {
	for _, event := range events {
		p.bus.Publish(event)
	}
}
