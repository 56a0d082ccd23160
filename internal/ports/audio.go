// Package ports define interfaces for dependency inversion.
// These interfaces allow the core business logic to remain independent of external frameworks.
package ports

import (
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
)

// AudioEngine is the interface for local audio output.
// It abstracts the underlying audio library (beep) and allows for testing with mocks.
//
// Implementations must be thread-safe as they may be called from multiple goroutines.
// Several handles may be loaded at once; the local producer and the two clip
// producers each own their own handle.
type AudioEngine interface {
	// Initialize opens the output device.
	// sampleRate: output sample rate in Hz (e.g., 44100)
	// buffer: the speaker buffer length; larger is safer, smaller is more responsive
	Initialize(sampleRate int, buffer time.Duration) error

	// Shutdown releases all audio engine resources.
	Shutdown() error

	// IsInitialized returns true if the engine has been successfully initialized.
	IsInitialized() bool

	// Load decodes an audio file and returns a handle to it.
	// The file remains loaded until Stop or Unload is called with the handle.
	Load(filePath string) (domain.TrackHandle, error)

	// Unload releases resources for a previously loaded track.
	Unload(handle domain.TrackHandle) error

	// Play starts or resumes playback of the specified track.
	Play(handle domain.TrackHandle) error

	// Pause pauses playback, preserving the position.
	Pause(handle domain.TrackHandle) error

	// Stop stops playback of the specified track and unloads it.
	Stop(handle domain.TrackHandle) error

	// Status returns the current status of the handle. A track that played to
	// its end reports domain.EngineStopped.
	Status(handle domain.TrackHandle) (domain.EngineStatus, error)

	// Position returns the current playback position within the track.
	Position(handle domain.TrackHandle) (time.Duration, error)

	// Duration returns the total duration of the track, or 0 if not yet known.
	Duration(handle domain.TrackHandle) (time.Duration, error)

	// Seek sets the playback position. It must be within [0, Duration].
	Seek(handle domain.TrackHandle, position time.Duration) error

	// SetVolume sets the playback volume from 0.0 (silent) to 1.0 (full volume).
	SetVolume(handle domain.TrackHandle, volume float64) error

	// GetVolume returns the current volume level for the specified track.
	GetVolume(handle domain.TrackHandle) (float64, error)

	// GetMetadata extracts tag metadata from an audio file without loading it for playback.
	GetMetadata(filePath string) (*domain.TrackInfo, error)
}
