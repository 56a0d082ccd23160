package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// ClipPollInterval is how often a clip player checks for the end of its clip.
const ClipPollInterval = 250 * time.Millisecond

// ClipPlayer plays one-shot clips (the adzan, an advertisement) on their own
// engine handle, independently of the local music player.
type ClipPlayer struct {
	logger *slog.Logger
	engine ports.AudioEngine
	clock  ports.Clock

	path    string
	handle  domain.TrackHandle
	onEnded func()

	mu            sync.Mutex
	stopUpdate    chan struct{}
	updateRunning bool
	updateWg      sync.WaitGroup
}

// NewClipPlayer creates a clip player and starts its end-detection routine.
func NewClipPlayer(logger *slog.Logger, engine ports.AudioEngine, clock ports.Clock) *ClipPlayer {
	c := &ClipPlayer{
		logger:     logger,
		engine:     engine,
		clock:      clock,
		handle:     domain.InvalidTrackHandle,
		stopUpdate: make(chan struct{}),
	}
	c.startUpdateRoutine()
	return c
}

// Play starts path at volume. onEnded runs once, with no lock held, when the
// clip finishes on its own. A clip already playing is stopped silently.
func (c *ClipPlayer) Play(ctx context.Context, path string, volume float64, onEnded func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path == "" {
		return domain.ErrInvalidFilePath
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	handle, err := c.engine.Load(path)
	if err != nil {
		return err
	}
	if err := c.engine.SetVolume(handle, volume); err != nil {
		c.release(handle)
		return err
	}
	if err := c.engine.Play(handle); err != nil {
		c.release(handle)
		return err
	}

	c.path = path
	c.handle = handle
	c.onEnded = onEnded

	c.logger.Debug("clip started", slog.String("path", path), slog.Float64("volume", volume))
	return nil
}

// Stop stops the current clip without running its end callback.
// It reports whether a clip was playing.
func (c *ClipPlayer) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *ClipPlayer) stopLocked() bool {
	if c.handle == domain.InvalidTrackHandle {
		return false
	}
	if err := c.engine.Stop(c.handle); err != nil {
		c.logger.Warn("failed to stop clip", slog.String("path", c.path), slog.Any("error", err))
	}
	c.clearLocked()
	return true
}

func (c *ClipPlayer) clearLocked() {
	c.handle = domain.InvalidTrackHandle
	c.path = ""
	c.onEnded = nil
}

func (c *ClipPlayer) release(handle domain.TrackHandle) {
	if err := c.engine.Unload(handle); err != nil {
		c.logger.Warn("failed to unload clip", slog.Any("error", err))
	}
}

// Active reports whether a clip is loaded.
func (c *ClipPlayer) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != domain.InvalidTrackHandle
}

// Shutdown stops the routine and any clip.
func (c *ClipPlayer) Shutdown() {
	c.mu.Lock()
	if c.updateRunning {
		close(c.stopUpdate)
		c.updateRunning = false
	}
	c.mu.Unlock()

	c.updateWg.Wait()
	c.Stop()
}

func (c *ClipPlayer) startUpdateRoutine() {
	c.mu.Lock()
	if c.updateRunning {
		c.mu.Unlock()
		return
	}
	c.updateRunning = true
	c.updateWg.Add(1)
	c.mu.Unlock()

	ticker := c.clock.NewTicker(ClipPollInterval)

	go func() {
		defer c.updateWg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-c.stopUpdate:
				return
			case <-ticker.C():
				c.tick()
			}
		}
	}()
}

// tick unloads a clip that played to its end and runs its callback.
func (c *ClipPlayer) tick() {
	c.mu.Lock()
	if c.handle == domain.InvalidTrackHandle {
		c.mu.Unlock()
		return
	}

	status, err := c.engine.Status(c.handle)
	if err != nil || status != domain.EngineStopped {
		c.mu.Unlock()
		return
	}

	path := c.path
	onEnded := c.onEnded
	if err := c.engine.Stop(c.handle); err != nil {
		c.logger.Warn("failed to release finished clip", slog.String("path", path), slog.Any("error", err))
	}
	c.clearLocked()
	c.mu.Unlock()

	c.logger.Debug("clip finished", slog.String("path", path))

	if onEnded != nil {
		onEnded()
	}
}
