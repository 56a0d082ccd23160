// Package service provides the playback arbiter and the services around it.
package service

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// QueueEngine holds the ordered list of item identifiers, the cursor and the
// shuffle/repeat modes, and computes what plays next.
// All operations are thread-safe via sync.RWMutex.
type QueueEngine struct {
	bus ports.EventBus
	rng *rand.Rand

	items   []string
	source  domain.Source
	cursor  int
	shuffle bool
	repeat  domain.RepeatMode
	history map[int]struct{}

	mu sync.RWMutex
}

// NewQueueEngine creates an empty queue. rng may be nil.
func NewQueueEngine(bus ports.EventBus, rng *rand.Rand) *QueueEngine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	return &QueueEngine{
		bus:     bus,
		rng:     rng,
		history: make(map[int]struct{}),
	}
}

// Replace atomically sets the items, source and cursor and clears the
// shuffle history. An out-of-range start index is clamped to 0.
func (q *QueueEngine) Replace(items []string, source domain.Source, startIndex int) {
	q.mu.Lock()
	q.items = slices.Clone(items)
	q.source = source
	if startIndex < 0 || startIndex >= len(items) {
		startIndex = 0
	}
	q.cursor = startIndex
	clear(q.history)
	event := q.changedLocked()
	q.mu.Unlock()

	q.bus.Publish(event)
}

// Advance returns the next item identifier. ok is false when the queue is
// empty or exhausted under the current repeat mode; the cursor is not moved.
func (q *QueueEngine) Advance() (string, bool) {
	q.mu.Lock()

	n := len(q.items)
	if n == 0 {
		q.mu.Unlock()
		return "", false
	}

	if q.repeat == domain.RepeatOne {
		id := q.items[q.cursor]
		q.mu.Unlock()
		return id, true
	}

	var next int
	switch {
	case q.shuffle:
		if n <= 1 {
			q.mu.Unlock()
			return "", false
		}
		next = q.pickShuffledLocked()

	case q.cursor+1 < n:
		next = q.cursor + 1

	case q.repeat == domain.RepeatAll:
		next = 0
		clear(q.history)

	default:
		q.mu.Unlock()
		return "", false
	}

	q.cursor = next
	id := q.items[next]
	event := q.changedLocked()
	q.mu.Unlock()

	q.bus.Publish(event)
	return id, true
}

// pickShuffledLocked picks uniformly among indices not yet visited in this
// round. The cursor counts as visited, so a round covers every index once.
// Caller must hold the write lock and guarantee len(items) > 1.
func (q *QueueEngine) pickShuffledLocked() int {
	all := lo.Range(len(q.items))
	notCursor := func(i int, _ int) bool { return i != q.cursor }

	q.history[q.cursor] = struct{}{}
	candidates := lo.Filter(all, func(i int, idx int) bool {
		_, seen := q.history[i]
		return !seen && notCursor(i, idx)
	})

	if len(candidates) == 0 {
		clear(q.history)
		q.history[q.cursor] = struct{}{}
		candidates = lo.Filter(all, notCursor)
	}

	next := candidates[q.rng.IntN(len(candidates))]
	q.history[next] = struct{}{}
	return next
}

// Retreat returns the previous item. It is linear even in shuffle mode and
// wraps to the last item only under RepeatAll.
func (q *QueueEngine) Retreat() (string, bool) {
	q.mu.Lock()

	n := len(q.items)
	if n == 0 {
		q.mu.Unlock()
		return "", false
	}

	prev := q.cursor - 1
	if prev < 0 {
		if q.repeat != domain.RepeatAll {
			q.mu.Unlock()
			return "", false
		}
		prev = n - 1
	}

	q.cursor = prev
	id := q.items[prev]
	event := q.changedLocked()
	q.mu.Unlock()

	q.bus.Publish(event)
	return id, true
}

// Clear empties the queue and resets the cursor.
func (q *QueueEngine) Clear() {
	q.mu.Lock()
	q.items = nil
	q.cursor = 0
	q.source = domain.SourceNone
	clear(q.history)
	event := q.changedLocked()
	q.mu.Unlock()

	q.bus.Publish(event)
}

// SetShuffle sets shuffle mode. Turning it on starts a fresh round.
func (q *QueueEngine) SetShuffle(shuffle bool) {
	q.mu.Lock()
	if q.shuffle == shuffle {
		q.mu.Unlock()
		return
	}
	q.shuffle = shuffle
	clear(q.history)
	repeat := q.repeat
	q.mu.Unlock()

	q.bus.Publish(domain.NewPlaybackModeChangedEvent(shuffle, repeat))
}

// SetRepeat sets the repeat mode.
func (q *QueueEngine) SetRepeat(mode domain.RepeatMode) {
	q.mu.Lock()
	if q.repeat == mode {
		q.mu.Unlock()
		return
	}
	q.repeat = mode
	shuffle := q.shuffle
	q.mu.Unlock()

	q.bus.Publish(domain.NewPlaybackModeChangedEvent(shuffle, mode))
}

// CycleRepeat advances off -> all -> one -> off and returns the new mode.
func (q *QueueEngine) CycleRepeat() domain.RepeatMode {
	q.mu.RLock()
	next := q.repeat.Next()
	q.mu.RUnlock()

	q.SetRepeat(next)
	return next
}

// State returns a copy of the queue state.
func (q *QueueEngine) State() domain.QueueState {
	q.mu.RLock()
	defer q.mu.RUnlock()

	history := make(map[int]struct{}, len(q.history))
	for i := range q.history {
		history[i] = struct{}{}
	}

	return domain.QueueState{
		Items:          slices.Clone(q.items),
		Source:         q.source,
		Cursor:         q.cursor,
		Shuffle:        q.shuffle,
		Repeat:         q.repeat,
		ShuffleHistory: history,
	}
}

// Current returns the item at the cursor, or "" when empty.
func (q *QueueEngine) Current() string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.cursor >= len(q.items) {
		return ""
	}
	return q.items[q.cursor]
}

// Shuffle reports whether shuffle mode is on.
func (q *QueueEngine) Shuffle() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.shuffle
}

// Repeat returns the repeat mode.
func (q *QueueEngine) Repeat() domain.RepeatMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.repeat
}

func (q *QueueEngine) changedLocked() domain.QueueChangedEvent {
	return domain.NewQueueChangedEvent(slices.Clone(q.items), q.source, q.cursor)
}
