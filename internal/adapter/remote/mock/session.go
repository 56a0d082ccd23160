// Package mock provides an in-memory RemoteSession for testing.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// Session records every call as "op:device[:args]" and can be told to fail
// individual operations.
type Session struct {
	readiness domain.RemoteReadiness
	state     domain.RemoteState
	queue     []domain.RemoteItem
	recent    []domain.RemoteItem
	failures  map[string]error
	hooks     map[string]func()
	calls     []string
	mu        sync.Mutex
}

// NewSession creates a session that is ready and premium on deviceID.
func NewSession(deviceID string) *Session {
	return &Session{
		readiness: domain.RemoteReadiness{Ready: true, Premium: true, DeviceID: deviceID},
		state:     domain.RemoteState{DeviceID: deviceID},
		failures:  make(map[string]error),
		hooks:     make(map[string]func()),
	}
}

// SetReadiness replaces the readiness signal.
func (s *Session) SetReadiness(r domain.RemoteReadiness) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = r
}

// SetState replaces what State reports.
func (s *Session) SetState(st domain.RemoteState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// SetQueue replaces what Queue and RecentlyPlayed report.
func (s *Session) SetQueue(queue, recent []domain.RemoteItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = queue
	s.recent = recent
}

// Fail makes op return err until cleared with a nil err.
func (s *Session) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// OnCall runs fn each time op is called, after the call is recorded and
// before it takes effect. A nil fn removes the hook.
func (s *Session) OnCall(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.hooks, op)
		return
	}
	s.hooks[op] = fn
}

// Calls returns a copy of the recorded calls.
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many calls started with op.
func (s *Session) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == op || strings.HasPrefix(c, op+":") {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Session) do(op string, args ...string) error {
	s.mu.Lock()

	call := op
	if len(args) > 0 {
		call += ":" + strings.Join(args, ":")
	}
	s.calls = append(s.calls, call)
	err, hook := s.failures[op], s.hooks[op]
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

// Connect implements ports.RemoteSession.
func (s *Session) Connect(context.Context) (domain.RemoteReadiness, error) {
	if err := s.do("connect"); err != nil {
		return domain.RemoteReadiness{}, err
	}
	return s.Readiness(), nil
}

// Readiness implements ports.RemoteSession.
func (s *Session) Readiness() domain.RemoteReadiness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readiness
}

// PlayItems implements ports.RemoteSession.
func (s *Session) PlayItems(_ context.Context, deviceID string, uris []string, offsetURI string) error {
	if err := s.do("play_items", deviceID, strings.Join(uris, ","), offsetURI); err != nil {
		return err
	}
	s.playing(true)
	return nil
}

// PlayContext implements ports.RemoteSession.
func (s *Session) PlayContext(_ context.Context, deviceID, contextURI, offsetURI string) error {
	if err := s.do("play_context", deviceID, contextURI, offsetURI); err != nil {
		return err
	}
	s.playing(true)
	return nil
}

// Pause implements ports.RemoteSession.
func (s *Session) Pause(_ context.Context, deviceID string) error {
	if err := s.do("pause", deviceID); err != nil {
		return err
	}
	s.playing(false)
	return nil
}

// Resume implements ports.RemoteSession.
func (s *Session) Resume(_ context.Context, deviceID string) error {
	if err := s.do("resume", deviceID); err != nil {
		return err
	}
	s.playing(true)
	return nil
}

// Seek implements ports.RemoteSession.
func (s *Session) Seek(_ context.Context, deviceID string, positionMs int) error {
	return s.do("seek", deviceID, fmt.Sprint(positionMs))
}

// SetShuffle implements ports.RemoteSession.
func (s *Session) SetShuffle(_ context.Context, deviceID string, shuffle bool) error {
	return s.do("shuffle", deviceID, fmt.Sprint(shuffle))
}

// SetRepeat implements ports.RemoteSession.
func (s *Session) SetRepeat(_ context.Context, deviceID string, mode domain.RepeatMode) error {
	return s.do("repeat", deviceID, mode.RemoteState())
}

// SetVolume implements ports.RemoteSession.
func (s *Session) SetVolume(_ context.Context, deviceID string, percent int) error {
	return s.do("volume", deviceID, fmt.Sprint(percent))
}

// Next implements ports.RemoteSession.
func (s *Session) Next(_ context.Context, deviceID string) error {
	return s.do("next", deviceID)
}

// Previous implements ports.RemoteSession.
func (s *Session) Previous(_ context.Context, deviceID string) error {
	return s.do("previous", deviceID)
}

// Queue implements ports.RemoteSession.
func (s *Session) Queue(context.Context) ([]domain.RemoteItem, error) {
	if err := s.do("queue"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RemoteItem(nil), s.queue...), nil
}

// RecentlyPlayed implements ports.RemoteSession.
func (s *Session) RecentlyPlayed(_ context.Context, limit int) ([]domain.RemoteItem, error) {
	if err := s.do("recent", fmt.Sprint(limit)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.recent
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return append([]domain.RemoteItem(nil), items...), nil
}

// State implements ports.RemoteSession.
func (s *Session) State(context.Context) (domain.RemoteState, error) {
	if err := s.do("state"); err != nil {
		return domain.RemoteState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *Session) playing(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Playing = on
}

var _ ports.RemoteSession = (*Session)(nil)
