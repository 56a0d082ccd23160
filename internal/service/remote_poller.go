package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// DefaultRemotePollInterval is how often the remote player state is read.
const DefaultRemotePollInterval = 5 * time.Second

// RemotePoller keeps the arbitrator's view of the remote player in step with
// changes made outside this process (another client pausing, skipping).
type RemotePoller struct {
	logger     *slog.Logger
	clock      ports.Clock
	remote     ports.RemoteSession
	arbitrator *Arbitrator
	interval   time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	running bool
	wg      sync.WaitGroup
}

// NewRemotePoller creates a stopped poller.
func NewRemotePoller(logger *slog.Logger, clock ports.Clock, remote ports.RemoteSession, arbitrator *Arbitrator, interval time.Duration) *RemotePoller {
	if interval <= 0 {
		interval = DefaultRemotePollInterval
	}
	return &RemotePoller{
		logger:     logger,
		clock:      clock,
		remote:     remote,
		arbitrator: arbitrator,
		interval:   interval,
	}
}

// Start begins polling. Calling Start twice is a no-op.
func (p *RemotePoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	stop := p.stop

	ticker := p.clock.NewTicker(p.interval)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C():
				p.Poll(ctx)
			}
		}
	}()
}

// Stop halts polling and waits for the goroutine. Calling Stop twice is a no-op.
func (p *RemotePoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
}

// Poll reads the remote state once. It does nothing during an interruption,
// before the session is ready or while a login is required.
func (p *RemotePoller) Poll(ctx context.Context) {
	if p.arbitrator.Status() != domain.StatusIdle || p.arbitrator.NeedsLogin() {
		return
	}
	if !p.remote.Readiness().Ready {
		return
	}

	state, err := p.remote.State(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			p.arbitrator.remoteFailed("state", err)
			return
		}
		p.arbitrator.metrics.RemoteError("state", err)
		p.logger.Debug("remote state poll failed", slog.Any("error", err))
		return
	}

	p.arbitrator.ObserveRemote(ctx, state)
}
