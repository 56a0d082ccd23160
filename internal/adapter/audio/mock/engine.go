// Package mock provides a mock implementation of the AudioEngine interface.
// This is used for testing services without an audio device.
package mock

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// DefaultDuration is the length given to every loaded file unless overridden
// with SetDuration.
const DefaultDuration = 3 * time.Minute

// Engine is a mock implementation of the AudioEngine interface.
// It simulates audio playback in memory without actually playing audio.
//
// Thread-safety: This implementation is thread-safe.
type Engine struct {
	logger *slog.Logger

	initialized bool
	sampleRate  int

	tracks     map[domain.TrackHandle]*mockTrack
	nextHandle domain.TrackHandle
	durations  map[string]time.Duration
	calls      []string
	mu         sync.RWMutex

	// Behavior configuration (for testing error scenarios)
	failInitialize bool
	failLoad       bool
	failPlay       bool
}

type mockTrack struct {
	handle   domain.TrackHandle
	filePath string
	duration time.Duration
	position time.Duration
	volume   float64
	status   domain.EngineStatus
}

// NewEngine creates a new mock audio engine.
func NewEngine() *Engine {
	return &Engine{
		tracks:     make(map[domain.TrackHandle]*mockTrack),
		durations:  make(map[string]time.Duration),
		nextHandle: 1,
	}
}

// SetLogger sets the logger for this engine.
func (m *Engine) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// SetFailInitialize configures the mock to fail initialization (for testing).
func (m *Engine) SetFailInitialize(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failInitialize = fail
}

// SetFailLoad configures the mock to fail loading tracks (for testing).
func (m *Engine) SetFailLoad(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLoad = fail
}

// SetFailPlay configures the mock to fail playback (for testing).
func (m *Engine) SetFailPlay(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPlay = fail
}

// SetDuration overrides the simulated duration of files loaded from path.
func (m *Engine) SetDuration(path string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[path] = d
}

// Initialize initializes the mock audio engine.
func (m *Engine) Initialize(sampleRate int, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failInitialize {
		return domain.NewAudioEngineError("initialize", "", "mock initialization failed", nil)
	}

	if m.initialized {
		return domain.ErrAlreadyInitialized
	}

	m.initialized = true
	m.sampleRate = sampleRate

	return nil
}

// Shutdown shuts down the mock audio engine.
func (m *Engine) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.ErrNotInitialized
	}

	m.initialized = false
	m.tracks = make(map[domain.TrackHandle]*mockTrack)

	return nil
}

// IsInitialized returns true if the engine is initialized.
func (m *Engine) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Load simulates decoding a file and returns a handle.
func (m *Engine) Load(filePath string) (domain.TrackHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.InvalidTrackHandle, domain.ErrNotInitialized
	}

	if m.failLoad {
		return domain.InvalidTrackHandle, domain.NewAudioEngineError("load", filePath, "mock load failed", nil)
	}

	if filePath == "" {
		return domain.InvalidTrackHandle, domain.ErrInvalidFilePath
	}

	duration, ok := m.durations[filePath]
	if !ok {
		duration = DefaultDuration
	}

	handle := m.nextHandle
	m.nextHandle++

	m.tracks[handle] = &mockTrack{
		handle:   handle,
		filePath: filePath,
		duration: duration,
		volume:   1.0,
		status:   domain.EngineStopped,
	}
	m.record("load", filePath)

	return handle, nil
}

// Unload unloads a previously loaded track.
func (m *Engine) Unload(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.ErrNotInitialized
	}

	if _, exists := m.tracks[handle]; !exists {
		return domain.ErrInvalidTrackHandle
	}

	delete(m.tracks, handle)
	return nil
}

// Play starts or resumes playback.
func (m *Engine) Play(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return domain.ErrInvalidTrackHandle
	}

	if m.failPlay {
		return domain.NewAudioEngineError("play", track.filePath, "mock play failed", nil)
	}

	if track.status == domain.EngineStopped {
		track.position = 0
	}

	track.status = domain.EnginePlaying
	m.record("play", track.filePath)
	return nil
}

// Pause pauses playback.
func (m *Engine) Pause(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return domain.ErrInvalidTrackHandle
	}

	if track.status == domain.EnginePlaying {
		track.status = domain.EnginePaused
	}
	m.record("pause", track.filePath)

	return nil
}

// Stop stops playback and unloads the track.
func (m *Engine) Stop(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return domain.ErrInvalidTrackHandle
	}

	m.record("stop", track.filePath)
	delete(m.tracks, handle)

	return nil
}

// Status returns the playback status.
func (m *Engine) Status(handle domain.TrackHandle) (domain.EngineStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return domain.EngineStopped, domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return domain.EngineStopped, domain.ErrInvalidTrackHandle
	}

	return track.status, nil
}

// Position returns the current playback position.
func (m *Engine) Position(handle domain.TrackHandle) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return 0, domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return 0, domain.ErrInvalidTrackHandle
	}

	return track.position, nil
}

// Duration returns the total track duration.
func (m *Engine) Duration(handle domain.TrackHandle) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return 0, domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return 0, domain.ErrInvalidTrackHandle
	}

	return track.duration, nil
}

// Seek sets the playback position.
func (m *Engine) Seek(handle domain.TrackHandle, position time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return domain.ErrInvalidTrackHandle
	}

	if position < 0 || position > track.duration {
		return domain.ErrInvalidPosition
	}

	track.position = position
	return nil
}

// SetVolume sets the playback volume.
func (m *Engine) SetVolume(handle domain.TrackHandle, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return domain.ErrInvalidTrackHandle
	}

	if volume < 0.0 || volume > 1.0 {
		return domain.ErrInvalidVolume
	}

	track.volume = volume
	return nil
}

// GetVolume returns the current volume.
func (m *Engine) GetVolume(handle domain.TrackHandle) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized {
		return 0, domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return 0, domain.ErrInvalidTrackHandle
	}

	return track.volume, nil
}

// GetMetadata derives mock metadata from a file path.
func (m *Engine) GetMetadata(filePath string) (*domain.TrackInfo, error) {
	if filePath == "" {
		return nil, domain.ErrInvalidFilePath
	}

	filename := filepath.Base(filePath)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))

	m.mu.RLock()
	duration, ok := m.durations[filePath]
	m.mu.RUnlock()
	if !ok {
		duration = DefaultDuration
	}

	return &domain.TrackInfo{
		FilePath: filePath,
		Title:    title,
		Artist:   "Mock Artist",
		Album:    "Mock Album",
		Duration: duration,
	}, nil
}

// GetLoadedTracks returns the number of currently loaded tracks (for testing).
func (m *Engine) GetLoadedTracks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tracks)
}

// StatusOf returns the status of the most recently loaded handle for path.
// ok is false when nothing is loaded from path.
func (m *Engine) StatusOf(path string) (domain.EngineStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if track := m.latest(path); track != nil {
		return track.status, true
	}
	return domain.EngineStopped, false
}

// VolumeOf returns the volume of the most recently loaded handle for path.
func (m *Engine) VolumeOf(path string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if track := m.latest(path); track != nil {
		return track.volume, true
	}
	return 0, false
}

// Calls returns the recorded operations as "op:path" strings (for testing).
func (m *Engine) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// SimulateProgress advances the position of a playing track by delta.
// A track that reaches its duration stops, as a real track would.
func (m *Engine) SimulateProgress(handle domain.TrackHandle, delta time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, exists := m.tracks[handle]
	if !exists {
		return domain.ErrInvalidTrackHandle
	}

	if track.status != domain.EnginePlaying {
		return fmt.Errorf("track is not playing")
	}

	track.position += delta
	if track.position >= track.duration {
		track.position = track.duration
		track.status = domain.EngineStopped
	}

	return nil
}

// SimulateEnd plays the most recent handle loaded from path to its end.
func (m *Engine) SimulateEnd(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track := m.latest(path)
	if track == nil {
		return domain.ErrInvalidTrackHandle
	}
	if track.status != domain.EnginePlaying {
		return fmt.Errorf("track is not playing")
	}
	track.position = track.duration
	track.status = domain.EngineStopped
	return nil
}

// latest returns the highest handle loaded from path. Caller holds the lock.
func (m *Engine) latest(path string) *mockTrack {
	var found *mockTrack
	for _, track := range m.tracks {
		if track.filePath == path && (found == nil || track.handle > found.handle) {
			found = track
		}
	}
	return found
}

// record appends to the call log. Caller holds the write lock.
func (m *Engine) record(op, path string) {
	m.calls = append(m.calls, op+":"+path)
	if m.logger != nil {
		m.logger.Debug("mock engine call", slog.String("op", op), slog.String("path", path))
	}
}

// Verify that Engine implements the AudioEngine interface
var _ ports.AudioEngine = (*Engine)(nil)
