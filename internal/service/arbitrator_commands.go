package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
)

// ticket records what a command saw when it was admitted. A producer may
// only be started under a ticket whose epoch is still current.
type ticket struct {
	op     string
	normal domain.NormalPlaybackState
	epoch  uint64
	quiet  bool // refusals are logged, not reported
}

// admit rejects normal commands outside idle.
func (a *Arbitrator) admit(op string) (ticket, error) {
	a.mu.Lock()
	t := ticket{op: op, normal: a.normal, epoch: a.epoch}
	err := a.refusalLocked(t)
	a.mu.Unlock()

	if err != nil {
		a.refused(t, err)
	}
	return t, err
}

// internalTicket admits an operation the arbitrator starts on its own.
func (a *Arbitrator) internalTicket(op string) ticket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ticket{op: op, normal: a.normal, epoch: a.epoch, quiet: true}
}

// refusalLocked returns why t may no longer touch a producer.
// Caller must hold a.mu.
func (a *Arbitrator) refusalLocked(t ticket) error {
	switch {
	case a.status.IsPrayer():
		return domain.ErrPrayerInProgress
	case a.status == domain.StatusAdvertisementPlaying:
		return domain.ErrAdvertisementInProgress
	case a.epoch != t.epoch:
		return domain.ErrInterrupted
	}
	return nil
}

func (a *Arbitrator) refused(t ticket, err error) {
	switch {
	case t.quiet:
		a.logger.Debug("operation dropped", slog.String("op", t.op), slog.Any("reason", err))
	case errors.Is(err, domain.ErrInterrupted):
		a.logger.Info("command superseded by an interruption", slog.String("op", t.op))
	default:
		a.reject(t.op, err)
	}
}

// claim makes n the normal state unless an interruption began after t was
// admitted. It runs before the producer is started.
func (a *Arbitrator) claim(t ticket, n domain.NormalPlaybackState) error {
	a.mu.Lock()
	if err := a.refusalLocked(t); err != nil {
		a.mu.Unlock()
		a.refused(t, err)
		return err
	}
	a.normal = n
	a.pendingItem = ""
	a.mu.Unlock()
	return nil
}

// recheck is claim without touching the normal state.
func (a *Arbitrator) recheck(t ticket) error {
	a.mu.Lock()
	err := a.refusalLocked(t)
	a.mu.Unlock()

	if err != nil {
		a.refused(t, err)
	}
	return err
}

// confirm silences a producer started under t when an interruption began
// while it was starting. The interruption snapshot already records it.
func (a *Arbitrator) confirm(t ticket, silence func() error) {
	a.mu.Lock()
	late := a.epoch != t.epoch && a.status != domain.StatusIdle
	a.mu.Unlock()

	if !late {
		return
	}
	a.logger.Info("interruption began while playback was starting", slog.String("op", t.op))
	if err := silence(); err != nil {
		a.logger.Warn("failed to silence late producer", slog.String("op", t.op), slog.Any("error", err))
	}
}

// settleNormal records n after a failed start. If an interruption began
// meanwhile, n replaces its snapshot so the resume does not revive a
// producer that never started.
func (a *Arbitrator) settleNormal(t ticket, n domain.NormalPlaybackState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.epoch != t.epoch && a.interruption != nil {
		a.interruption.Snapshot = n
		a.normal = n.WithPaused(true)
		return
	}
	a.normal = n
}

// Play starts normal playback. An empty request resumes what was last
// playing; a list request replaces the queue first.
func (a *Arbitrator) Play(ctx context.Context, req domain.PlayRequest) error {
	t, err := a.admit("play")
	if err != nil {
		return err
	}

	if req.IsEmpty() {
		req = a.requestFromMemory()
		if req.IsEmpty() {
			a.notifier.Notify(domain.NotifyInfo, "Nothing to play")
			return domain.ErrNothingToPlay
		}
	}

	switch {
	case len(req.Items) > 0:
		start := req.StartIndex
		if start < 0 || start >= len(req.Items) {
			start = 0
		}
		a.queue.Replace(req.Items, domain.SourceOf(req.Items[start]), start)
		current := a.queue.Current()
		if domain.SourceOf(current) == domain.SourceRemote {
			// The device only understands its own URIs
			uris := lo.Filter(req.Items, func(id string, _ int) bool {
				return !domain.IsLocalItem(id) && !domain.IsAdItem(id)
			})
			return a.playRemote(ctx, t, uris, current, "")
		}
		return a.playLocal(ctx, t, current)

	case req.ContextID != "":
		return a.playRemote(ctx, t, nil, req.OffsetID, req.ContextID)

	default:
		a.queue.Replace([]string{req.ItemID}, domain.SourceOf(req.ItemID), 0)
		return a.playItem(ctx, t, req.ItemID)
	}
}

// requestFromMemory builds a request from the remembered item or context.
func (a *Arbitrator) requestFromMemory() domain.PlayRequest {
	if a.memory == nil {
		return domain.PlayRequest{}
	}
	mem := a.memory.Get()
	switch {
	case mem.LastPlayedItem != "":
		return domain.PlayRequest{ItemID: mem.LastPlayedItem}
	case mem.LastPlayedContext != "":
		return domain.PlayRequest{ContextID: mem.LastPlayedContext}
	default:
		return domain.PlayRequest{}
	}
}

// playItem routes one identifier to the producer it belongs to.
func (a *Arbitrator) playItem(ctx context.Context, t ticket, itemID string) error {
	if domain.IsLocalItem(itemID) {
		return a.playLocal(ctx, t, itemID)
	}
	return a.playRemote(ctx, t, []string{itemID}, "", "")
}

// playLocal pauses the remote if it was the normal source, then plays
// itemID on the local player.
func (a *Arbitrator) playLocal(ctx context.Context, t ticket, itemID string) error {
	if t.normal.Kind == domain.NormalRemote && a.remote != nil {
		if err := a.remote.Pause(ctx, t.normal.DeviceID); err != nil {
			a.metrics.RemoteError("pause", err)
			a.logger.Warn("failed to pause remote before local playback", slog.Any("error", err))
		}
	}

	if err := a.claim(t, domain.LocalPlayback(false)); err != nil {
		return err
	}

	if err := a.local.Play(ctx, itemID); err != nil {
		a.settleNormal(t, domain.NoPlayback())
		a.notifier.Notify(domain.NotifyError, fmt.Sprintf("Cannot play %s", itemID))
		return err
	}
	a.confirm(t, a.local.Pause)

	if a.memory != nil {
		a.memory.RecordItem(ctx, itemID, "")
	}
	return nil
}

// checkRemote enforces readiness and the paid tier before any network call.
func (a *Arbitrator) checkRemote() (domain.RemoteReadiness, error) {
	if a.remote == nil {
		a.notifier.Notify(domain.NotifyWarning, "Remote player is not configured")
		return domain.RemoteReadiness{}, domain.ErrRemoteNotReady
	}

	r := a.remote.Readiness()
	if !r.Ready {
		a.notifier.Notify(domain.NotifyWarning, "Remote player is not ready")
		return r, domain.ErrRemoteNotReady
	}
	if !r.Premium {
		a.notifier.Notify(domain.NotifyWarning, "Remote playback requires a premium account")
		return r, domain.ErrUpgradeRequired
	}
	return r, nil
}

// playRemote stops local output and starts either a context (when
// contextURI is set) or a list of items on the remote device.
func (a *Arbitrator) playRemote(ctx context.Context, t ticket, uris []string, offsetURI, contextURI string) error {
	readiness, err := a.checkRemote()
	if err != nil {
		return err
	}
	if err := a.claim(t, domain.RemotePlayback(readiness.DeviceID, false)); err != nil {
		return err
	}

	if err := a.local.Stop(); err != nil {
		a.logger.Warn("failed to stop local before remote playback", slog.Any("error", err))
	}

	if contextURI != "" {
		if err := a.remote.SetShuffle(ctx, readiness.DeviceID, a.queue.Shuffle()); err != nil {
			a.logger.Debug("shuffle not applied", slog.Any("error", err))
		}
		if err := a.remote.SetRepeat(ctx, readiness.DeviceID, a.queue.Repeat()); err != nil {
			a.logger.Debug("repeat not applied", slog.Any("error", err))
		}
		err = a.remote.PlayContext(ctx, readiness.DeviceID, contextURI, offsetURI)
	} else {
		err = a.remote.PlayItems(ctx, readiness.DeviceID, uris, offsetURI)
	}
	if err != nil {
		a.settleNormal(t, domain.NoPlayback())
		a.remoteFailed("play", err)
		return err
	}
	a.confirm(t, func() error { return a.remote.Pause(a.runCtx, readiness.DeviceID) })

	if a.memory != nil {
		item := offsetURI
		if item == "" && len(uris) > 0 {
			item = uris[0]
		}
		a.memory.RecordItem(ctx, item, contextURI)
	}
	return nil
}

// Pause pauses the normal producer.
func (a *Arbitrator) Pause(ctx context.Context) error {
	t, err := a.admit("pause")
	if err != nil {
		return err
	}

	switch t.normal.Kind {
	case domain.NormalRemote:
		if err := a.claim(t, t.normal.WithPaused(true)); err != nil {
			return err
		}
		if err := a.remote.Pause(ctx, t.normal.DeviceID); err != nil {
			a.remoteFailed("pause", err)
			return err
		}
	case domain.NormalLocal:
		if err := a.claim(t, t.normal.WithPaused(true)); err != nil {
			return err
		}
		return a.local.Pause()
	default:
		return domain.ErrNothingToPlay
	}
	return nil
}

// Resume resumes the normal producer, or replays the remembered item when
// nothing is loaded. A local item that ended during an interruption is
// followed by the next queued item instead.
func (a *Arbitrator) Resume(ctx context.Context) error {
	t, err := a.admit("resume")
	if err != nil {
		return err
	}

	switch t.normal.Kind {
	case domain.NormalRemote:
		if _, err := a.checkRemote(); err != nil {
			return err
		}
		if err := a.claim(t, t.normal.WithPaused(false)); err != nil {
			return err
		}
		if err := a.remote.Resume(ctx, t.normal.DeviceID); err != nil {
			a.remoteFailed("resume", err)
			return err
		}
		a.confirm(t, func() error { return a.remote.Pause(a.runCtx, t.normal.DeviceID) })
	case domain.NormalLocal:
		if next := a.pending(); next != "" {
			return a.playItem(ctx, t, next)
		}
		if err := a.claim(t, t.normal.WithPaused(false)); err != nil {
			return err
		}
		if err := a.local.Resume(); err != nil {
			if errors.Is(err, domain.ErrTrackEnded) {
				return nil
			}
			a.settleNormal(t, t.normal)
			return err
		}
		a.confirm(t, a.local.Pause)
	default:
		return a.Play(ctx, domain.PlayRequest{})
	}
	return nil
}

// pending returns the item queued to follow a local end that happened
// during an interruption.
func (a *Arbitrator) pending() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingItem
}

// TogglePlay pauses when playing and resumes otherwise.
func (a *Arbitrator) TogglePlay(ctx context.Context) error {
	if a.Normal().IsPlaying() {
		return a.Pause(ctx)
	}
	return a.Resume(ctx)
}

// Next skips forward: natively on a ready remote, otherwise through the queue.
func (a *Arbitrator) Next(ctx context.Context) error {
	return a.skip(ctx, "next", true)
}

// Previous skips back: natively on a ready remote, otherwise through the queue.
func (a *Arbitrator) Previous(ctx context.Context) error {
	return a.skip(ctx, "previous", false)
}

func (a *Arbitrator) skip(ctx context.Context, op string, forward bool) error {
	t, err := a.admit(op)
	if err != nil {
		return err
	}

	if t.normal.Kind == domain.NormalRemote && a.remote != nil && a.remote.Readiness().Ready {
		if err := a.recheck(t); err != nil {
			return err
		}
		call := a.remote.Next
		if !forward {
			call = a.remote.Previous
		}
		if err := call(ctx, t.normal.DeviceID); err != nil {
			a.remoteFailed(op, err)
			return err
		}
		a.confirm(t, func() error { return a.remote.Pause(a.runCtx, t.normal.DeviceID) })
		return nil
	}

	if err := a.recheck(t); err != nil {
		return err
	}
	next := a.queue.Advance
	if !forward {
		next = a.queue.Retreat
	}
	itemID, ok := next()
	if !ok {
		a.logger.Debug("queue has nothing to play", slog.String("op", op))
		return nil
	}
	return a.playItem(ctx, t, itemID)
}

// onLocalEnded advances the queue after a local item ends on its own.
// While idle with local as the normal source the next item plays at once.
// During an interruption that paused local playback the next item is kept
// for the resume.
func (a *Arbitrator) onLocalEnded() {
	a.mu.Lock()
	local := a.normal.Kind == domain.NormalLocal
	if a.status != domain.StatusIdle {
		local = a.interruption != nil && a.interruption.Snapshot.Kind == domain.NormalLocal
	}
	a.mu.Unlock()

	if !local {
		return
	}

	itemID, ok := a.queue.Advance()

	if a.deferAdvance(itemID, ok) {
		return
	}

	t := a.internalTicket("advance")
	if t.normal.Kind != domain.NormalLocal {
		return
	}
	if !ok {
		a.logger.Info("queue finished")
		a.settleNormal(t, domain.NoPlayback())
		return
	}

	if err := a.playItem(a.runCtx, t, itemID); err != nil {
		if !a.deferAdvance(itemID, ok) {
			a.logger.Warn("failed to advance queue", slog.String("item", itemID), slog.Any("error", err))
		}
	}
}

// deferAdvance keeps the next item for the resume when an interruption holds
// a local snapshot. A finished queue clears the snapshot instead. It reports
// whether the advance was deferred.
func (a *Arbitrator) deferAdvance(itemID string, ok bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.interruption == nil || a.interruption.Snapshot.Kind != domain.NormalLocal {
		return false
	}
	if ok {
		a.pendingItem = itemID
		a.logger.Debug("advance deferred until playback resumes", slog.String("item", itemID))
	} else {
		a.interruption.Snapshot = domain.NoPlayback()
		a.normal = domain.NoPlayback()
		a.logger.Info("queue finished")
	}
	return true
}

// Seek moves the normal producer to position.
func (a *Arbitrator) Seek(ctx context.Context, position time.Duration) error {
	t, err := a.admit("seek")
	if err != nil {
		return err
	}
	if position < 0 {
		return domain.ErrInvalidPosition
	}

	switch t.normal.Kind {
	case domain.NormalRemote:
		if err := a.remote.Seek(ctx, t.normal.DeviceID, int(position.Milliseconds())); err != nil {
			a.remoteFailed("seek", err)
			return err
		}
		return nil
	case domain.NormalLocal:
		return a.local.Seek(position)
	default:
		return domain.ErrNothingToPlay
	}
}

// ToggleShuffle flips shuffle mode and returns the new value.
func (a *Arbitrator) ToggleShuffle(ctx context.Context) (bool, error) {
	t, err := a.admit("shuffle")
	if err != nil {
		return false, err
	}

	shuffle := !a.queue.Shuffle()
	a.queue.SetShuffle(shuffle)

	if t.normal.Kind == domain.NormalRemote && a.remote != nil {
		if err := a.remote.SetShuffle(ctx, t.normal.DeviceID, shuffle); err != nil {
			a.remoteFailed("shuffle", err)
			return shuffle, err
		}
	}
	return shuffle, nil
}

// ToggleRepeat cycles off -> all -> one -> off and returns the new mode.
func (a *Arbitrator) ToggleRepeat(ctx context.Context) (domain.RepeatMode, error) {
	t, err := a.admit("repeat")
	if err != nil {
		return a.queue.Repeat(), err
	}

	mode := a.queue.CycleRepeat()
	a.local.SetRepeatOne(mode == domain.RepeatOne)

	if t.normal.Kind == domain.NormalRemote && a.remote != nil {
		if err := a.remote.SetRepeat(ctx, t.normal.DeviceID, mode); err != nil {
			a.remoteFailed("repeat", err)
			return mode, err
		}
	}
	return mode, nil
}

// SetVolume sets the volume of the normal producers (0.0 to 1.0).
func (a *Arbitrator) SetVolume(ctx context.Context, volume float64) error {
	t, err := a.admit("volume")
	if err != nil {
		return err
	}
	if volume < 0 || volume > 1 {
		return domain.ErrInvalidVolume
	}

	if err := a.local.SetVolume(volume); err != nil {
		return err
	}

	if t.normal.Kind == domain.NormalRemote && a.remote != nil {
		percent := int(math.Round(volume * 100))
		if err := a.remote.SetVolume(ctx, t.normal.DeviceID, percent); err != nil {
			a.remoteFailed("volume", err)
			return err
		}
	}
	return nil
}

// ConnectRemote checks the remote account and device. A success clears the
// needs-login condition.
func (a *Arbitrator) ConnectRemote(ctx context.Context) (domain.RemoteReadiness, error) {
	if a.remote == nil {
		return domain.RemoteReadiness{}, domain.ErrRemoteNotReady
	}

	readiness, err := a.remote.Connect(ctx)
	if err != nil {
		a.remoteFailed("connect", err)
		return readiness, err
	}

	a.mu.Lock()
	a.needsLogin = false
	a.mu.Unlock()

	a.logger.Info("remote connected",
		slog.String("device_id", readiness.DeviceID),
		slog.Bool("premium", readiness.Premium))
	return readiness, nil
}

// ObserveRemote folds a polled remote state into the normal state while
// idle and keeps the playback memory on the remote's current item.
func (a *Arbitrator) ObserveRemote(ctx context.Context, state domain.RemoteState) {
	a.mu.Lock()
	if a.status != domain.StatusIdle {
		a.mu.Unlock()
		return
	}
	switch a.normal.Kind {
	case domain.NormalRemote:
		a.normal.Paused = !state.Playing
		if state.DeviceID != "" {
			a.normal.DeviceID = state.DeviceID
		}
	case domain.NormalNone:
		if state.Playing {
			a.normal = domain.RemotePlayback(state.DeviceID, false)
		}
	}
	tracking := a.normal.Kind == domain.NormalRemote
	a.mu.Unlock()

	if !tracking || a.memory == nil || state.ItemURI == "" {
		return
	}
	if mem := a.memory.Get(); mem.LastPlayedItem != state.ItemURI {
		a.memory.RecordItem(ctx, state.ItemURI, state.ContextURI)
	}
}
