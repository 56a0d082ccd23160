//go:build (linux && cgo) || windows || darwin

// Package beepaudio implements the AudioEngine port on top of gopxl/beep.
package beepaudio

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// AudioAvailable indicates whether audio playback is supported in this build.
const AudioAvailable = true

// Engine mixes every loaded handle into one speaker.
//
// Thread-safety: e.mu guards the handle table; speaker.Lock guards the
// streamer graph while the speaker goroutine is pulling samples.
type Engine struct {
	logger *slog.Logger

	initialized bool
	sampleRate  beep.SampleRate

	tracks     map[domain.TrackHandle]*track
	nextHandle domain.TrackHandle
	mu         sync.RWMutex
}

type track struct {
	path     string
	stream   beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	gain     *effects.Volume
	volume   float64
	queued   bool
	finished atomic.Bool
}

// NewEngine creates an uninitialized engine.
func NewEngine() *Engine {
	return &Engine{
		tracks:     make(map[domain.TrackHandle]*track),
		nextHandle: 1,
	}
}

// SetLogger sets the logger for this engine.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// Initialize opens the default output device.
func (e *Engine) Initialize(sampleRate int, buffer time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return domain.ErrAlreadyInitialized
	}
	if buffer <= 0 {
		buffer = 100 * time.Millisecond
	}

	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(buffer)); err != nil {
		return domain.NewAudioEngineError("initialize", "", "speaker init failed", err)
	}

	e.sampleRate = sr
	e.initialized = true
	return nil
}

// Shutdown stops every handle and closes the speaker.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.ErrNotInitialized
	}

	speaker.Clear()
	for handle, t := range e.tracks {
		if err := t.stream.Close(); err != nil && e.logger != nil {
			e.logger.Warn("failed to close stream", slog.String("path", t.path), slog.Any("error", err))
		}
		delete(e.tracks, handle)
	}
	speaker.Close()
	e.initialized = false
	return nil
}

// IsInitialized returns true if the speaker is open.
func (e *Engine) IsInitialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// Load decodes filePath. MP3 and WAV are supported.
func (e *Engine) Load(filePath string) (domain.TrackHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return domain.InvalidTrackHandle, domain.ErrNotInitialized
	}
	if filePath == "" {
		return domain.InvalidTrackHandle, domain.ErrInvalidFilePath
	}

	stream, format, err := decode(filePath)
	if err != nil {
		return domain.InvalidTrackHandle, domain.NewAudioEngineError("load", filePath, "decode failed", err)
	}

	resampled := beep.Resample(4, format.SampleRate, e.sampleRate, stream)
	ctrl := &beep.Ctrl{Streamer: resampled, Paused: true}
	gain := &effects.Volume{Streamer: ctrl, Base: 2}

	handle := e.nextHandle
	e.nextHandle++
	e.tracks[handle] = &track{
		path:   filePath,
		stream: stream,
		format: format,
		ctrl:   ctrl,
		gain:   gain,
		volume: 1.0,
	}

	if e.logger != nil {
		e.logger.Debug("track decoded",
			slog.String("path", filePath),
			slog.Int("sample_rate", int(format.SampleRate)),
			slog.Duration("duration", format.SampleRate.D(stream.Len())))
	}
	return handle, nil
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		stream, format, err = mp3.Decode(f)
	case ".wav":
		stream, format, err = wav.Decode(f)
	default:
		err = domain.ErrUnsupportedFormat
	}
	if err != nil {
		_ = f.Close()
		return nil, beep.Format{}, err
	}
	return stream, format, nil
}

// Unload releases the handle without the bookkeeping of Stop.
func (e *Engine) Unload(handle domain.TrackHandle) error {
	return e.Stop(handle)
}

// Play starts or resumes the handle. A finished handle restarts from 0.
func (e *Engine) Play(handle domain.TrackHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.lookup(handle)
	if err != nil {
		return err
	}

	speaker.Lock()
	if t.finished.Load() {
		if err := t.stream.Seek(0); err != nil {
			speaker.Unlock()
			return domain.NewAudioEngineError("play", t.path, "rewind failed", err)
		}
		t.finished.Store(false)
		t.queued = false
	}
	t.ctrl.Paused = false
	queued := t.queued
	t.queued = true
	speaker.Unlock()

	if !queued {
		// The callback runs on the speaker goroutine with the speaker locked
		speaker.Play(beep.Seq(t.gain, beep.Callback(func() {
			t.finished.Store(true)
		})))
	}
	return nil
}

// Pause pauses the handle.
func (e *Engine) Pause(handle domain.TrackHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.lookup(handle)
	if err != nil {
		return err
	}

	speaker.Lock()
	t.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// Stop detaches the handle from the speaker and closes its decoder.
func (e *Engine) Stop(handle domain.TrackHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.lookup(handle)
	if err != nil {
		return err
	}

	speaker.Lock()
	t.ctrl.Paused = true
	t.ctrl.Streamer = nil
	speaker.Unlock()

	delete(e.tracks, handle)
	if err := t.stream.Close(); err != nil {
		return domain.NewAudioEngineError("stop", t.path, "close failed", err)
	}
	return nil
}

// Status reports playing, paused or stopped (finished).
func (e *Engine) Status(handle domain.TrackHandle) (domain.EngineStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, err := e.lookup(handle)
	if err != nil {
		return domain.EngineStopped, err
	}

	if t.finished.Load() {
		return domain.EngineStopped, nil
	}

	speaker.Lock()
	paused := t.ctrl.Paused
	speaker.Unlock()

	switch {
	case !t.queued:
		return domain.EngineStopped, nil
	case paused:
		return domain.EnginePaused, nil
	default:
		return domain.EnginePlaying, nil
	}
}

// Position returns the decoder position.
func (e *Engine) Position(handle domain.TrackHandle) (time.Duration, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, err := e.lookup(handle)
	if err != nil {
		return 0, err
	}

	speaker.Lock()
	pos := t.stream.Position()
	speaker.Unlock()
	return t.format.SampleRate.D(pos), nil
}

// Duration returns the decoded length.
func (e *Engine) Duration(handle domain.TrackHandle) (time.Duration, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, err := e.lookup(handle)
	if err != nil {
		return 0, err
	}
	return t.format.SampleRate.D(t.stream.Len()), nil
}

// Seek moves the decoder to position.
func (e *Engine) Seek(handle domain.TrackHandle, position time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.lookup(handle)
	if err != nil {
		return err
	}

	n := t.format.SampleRate.N(position)
	if n < 0 || n > t.stream.Len() {
		return domain.ErrInvalidPosition
	}

	speaker.Lock()
	defer speaker.Unlock()
	if err := t.stream.Seek(n); err != nil {
		return domain.NewAudioEngineError("seek", t.path, "seek failed", err)
	}
	return nil
}

// SetVolume maps a linear volume onto a base-2 gain.
func (e *Engine) SetVolume(handle domain.TrackHandle, volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return domain.ErrInvalidVolume
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.lookup(handle)
	if err != nil {
		return err
	}

	speaker.Lock()
	t.gain.Silent = volume == 0
	if volume > 0 {
		t.gain.Volume = math.Log2(volume)
	}
	speaker.Unlock()

	t.volume = volume
	return nil
}

// GetVolume returns the linear volume last set.
func (e *Engine) GetVolume(handle domain.TrackHandle) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, err := e.lookup(handle)
	if err != nil {
		return 0, err
	}
	return t.volume, nil
}

// GetMetadata reads tags without decoding audio.
func (e *Engine) GetMetadata(filePath string) (*domain.TrackInfo, error) {
	return readMetadata(filePath)
}

// lookup returns the track for handle. Caller holds e.mu.
func (e *Engine) lookup(handle domain.TrackHandle) (*track, error) {
	if !e.initialized {
		return nil, domain.ErrNotInitialized
	}
	t, ok := e.tracks[handle]
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", handle, domain.ErrInvalidTrackHandle)
	}
	return t, nil
}

var _ ports.AudioEngine = (*Engine)(nil)
