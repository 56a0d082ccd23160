//go:build linux && !cgo

package beepaudio

import (
	"errors"
	"log/slog"
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// AudioAvailable indicates whether audio playback is supported in this build.
// The speaker needs cgo on Linux.
const AudioAvailable = false

var errNoAudio = errors.New("audio output requires a cgo build")

// Engine is a stand-in that refuses to initialize.
type Engine struct{}

// NewEngine creates the stand-in engine.
func NewEngine() *Engine { return &Engine{} }

// SetLogger is a no-op.
func (e *Engine) SetLogger(*slog.Logger) {}

func (e *Engine) Initialize(int, time.Duration) error {
	return domain.NewAudioEngineError("initialize", "", "unavailable", errNoAudio)
}
func (e *Engine) Shutdown() error                                 { return domain.ErrNotInitialized }
func (e *Engine) IsInitialized() bool                             { return false }
func (e *Engine) Load(string) (domain.TrackHandle, error)         { return 0, domain.ErrNotInitialized }
func (e *Engine) Unload(domain.TrackHandle) error                 { return domain.ErrNotInitialized }
func (e *Engine) Play(domain.TrackHandle) error                   { return domain.ErrNotInitialized }
func (e *Engine) Pause(domain.TrackHandle) error                  { return domain.ErrNotInitialized }
func (e *Engine) Stop(domain.TrackHandle) error                   { return domain.ErrNotInitialized }
func (e *Engine) Seek(domain.TrackHandle, time.Duration) error    { return domain.ErrNotInitialized }
func (e *Engine) SetVolume(domain.TrackHandle, float64) error     { return domain.ErrNotInitialized }
func (e *Engine) GetVolume(domain.TrackHandle) (float64, error)   { return 0, domain.ErrNotInitialized }
func (e *Engine) Position(domain.TrackHandle) (time.Duration, error) {
	return 0, domain.ErrNotInitialized
}
func (e *Engine) Duration(domain.TrackHandle) (time.Duration, error) {
	return 0, domain.ErrNotInitialized
}
func (e *Engine) Status(domain.TrackHandle) (domain.EngineStatus, error) {
	return domain.EngineStopped, domain.ErrNotInitialized
}

// GetMetadata still works without audio output.
func (e *Engine) GetMetadata(filePath string) (*domain.TrackInfo, error) {
	return readMetadata(filePath)
}

var _ ports.AudioEngine = (*Engine)(nil)
