// Package domain contains core business models and logic with no external dependencies.
// This package defines the fundamental entities of the adzantune playback arbiter.
package domain

import (
	"strings"
	"time"
)

// Item identifier prefixes. Anything without a local prefix is a remote URI.
const (
	LocalTrackPrefix = "local:track:"
	LocalAdPrefix    = "local:ads:"
)

// IsLocalItem reports whether id denotes a local music file.
func IsLocalItem(id string) bool {
	return strings.HasPrefix(id, LocalTrackPrefix)
}

// IsAdItem reports whether id denotes a local advertisement file.
func IsAdItem(id string) bool {
	return strings.HasPrefix(id, LocalAdPrefix)
}

// IsRemoteContext reports whether id is a remote collection (album, playlist,
// artist) rather than a single track.
func IsRemoteContext(id string) bool {
	for _, kind := range []string{":album:", ":playlist:", ":artist:", ":show:"} {
		if strings.Contains(id, kind) {
			return true
		}
	}
	return false
}

// PlaybackStatus is the single authoritative answer to "what is the speaker doing".
// Exactly one value is active at any time.
type PlaybackStatus int

const (
	// StatusIdle means no interruption; normal playback may or may not be sounding.
	StatusIdle PlaybackStatus = iota
	// StatusWaitingForIqomah is the transient phase between adzan end and countdown.
	StatusWaitingForIqomah
	// StatusAnnouncementPlaying means the adzan clip owns the speaker.
	StatusAnnouncementPlaying
	// StatusIqomahCountdown means the iqomah timer is armed.
	StatusIqomahCountdown
	// StatusAdvertisementPlaying means an ad clip owns the speaker.
	StatusAdvertisementPlaying
)

// String returns the string representation of the playback status.
func (s PlaybackStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWaitingForIqomah:
		return "waitingForIqomah"
	case StatusAnnouncementPlaying:
		return "announcementPlaying"
	case StatusIqomahCountdown:
		return "iqomahCountdown"
	case StatusAdvertisementPlaying:
		return "advertisementPlaying"
	default:
		return "unknown"
	}
}

// IsPrayer reports whether the status belongs to a prayer interruption.
func (s PlaybackStatus) IsPrayer() bool {
	return s == StatusAnnouncementPlaying || s == StatusWaitingForIqomah || s == StatusIqomahCountdown
}

// Source identifies which normal producer a queue or command targets.
type Source int

const (
	SourceNone Source = iota
	SourceRemote
	SourceLocal
)

// String returns the string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceLocal:
		return "local"
	default:
		return "none"
	}
}

// SourceOf returns the source an item identifier routes to.
func SourceOf(id string) Source {
	if id == "" {
		return SourceNone
	}
	if IsLocalItem(id) {
		return SourceLocal
	}
	return SourceRemote
}

// RepeatMode controls how the queue behaves at its end.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// String returns the string representation of the repeat mode.
func (r RepeatMode) String() string {
	switch r {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "off"
	}
}

// Next cycles off -> all -> one -> off.
func (r RepeatMode) Next() RepeatMode {
	switch r {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// RemoteState maps the mode onto the remote player's repeat vocabulary.
func (r RepeatMode) RemoteState() string {
	switch r {
	case RepeatAll:
		return "context"
	case RepeatOne:
		return "track"
	default:
		return "off"
	}
}

// ParseRepeatMode parses "off", "all" or "one". Unknown values yield RepeatOff.
func ParseRepeatMode(s string) RepeatMode {
	switch strings.ToLower(s) {
	case "all", "context":
		return RepeatAll
	case "one", "track":
		return RepeatOne
	default:
		return RepeatOff
	}
}

// NormalKind tags the NormalPlaybackState union.
type NormalKind int

const (
	NormalNone NormalKind = iota
	NormalRemote
	NormalLocal
)

// NormalPlaybackState describes which normal producer is active and whether it
// is paused. It is a tagged union: DeviceID is only meaningful for NormalRemote.
type NormalPlaybackState struct {
	Kind     NormalKind
	DeviceID string
	Paused   bool
}

// NoPlayback returns the empty state.
func NoPlayback() NormalPlaybackState {
	return NormalPlaybackState{Kind: NormalNone}
}

// RemotePlayback returns a remote state on the given device.
func RemotePlayback(deviceID string, paused bool) NormalPlaybackState {
	return NormalPlaybackState{Kind: NormalRemote, DeviceID: deviceID, Paused: paused}
}

// LocalPlayback returns a local state.
func LocalPlayback(paused bool) NormalPlaybackState {
	return NormalPlaybackState{Kind: NormalLocal, Paused: paused}
}

// IsPlaying reports whether a normal producer is currently sounding.
func (n NormalPlaybackState) IsPlaying() bool {
	return n.Kind != NormalNone && !n.Paused
}

// WasRemotePlaying reports whether the remote producer was sounding.
func (n NormalPlaybackState) WasRemotePlaying() bool {
	return n.Kind == NormalRemote && !n.Paused
}

// WasLocalPlaying reports whether the local producer was sounding.
func (n NormalPlaybackState) WasLocalPlaying() bool {
	return n.Kind == NormalLocal && !n.Paused
}

// WithPaused returns a copy with the paused flag replaced.
func (n NormalPlaybackState) WithPaused(paused bool) NormalPlaybackState {
	if n.Kind == NormalNone {
		return n
	}
	n.Paused = paused
	return n
}

// Source returns the producer source for the state.
func (n NormalPlaybackState) Source() Source {
	switch n.Kind {
	case NormalRemote:
		return SourceRemote
	case NormalLocal:
		return SourceLocal
	default:
		return SourceNone
	}
}

// InterruptionKind distinguishes prayer announcements from advertisements.
type InterruptionKind int

const (
	InterruptionAnnouncement InterruptionKind = iota
	InterruptionAdvertisement
)

// String returns the string representation of the interruption kind.
func (k InterruptionKind) String() string {
	if k == InterruptionAdvertisement {
		return "advertisement"
	}
	return "announcement"
}

// InterruptionContext is created when an interruption begins and discarded when
// it ends. Snapshot is captured once and consumed once.
type InterruptionContext struct {
	ID        string
	Kind      InterruptionKind
	StartedAt time.Time
	Label     string
	Snapshot  NormalPlaybackState
}

// QueueState is a copy of the queue engine's state.
type QueueState struct {
	Items          []string
	Source         Source
	Cursor         int
	Shuffle        bool
	Repeat         RepeatMode
	ShuffleHistory map[int]struct{}
}

// Current returns the item at the cursor, or "" when the queue is empty.
func (q QueueState) Current() string {
	if q.Cursor < 0 || q.Cursor >= len(q.Items) {
		return ""
	}
	return q.Items[q.Cursor]
}

// PlaybackMemory is what gets persisted so playback can be resumed after a restart.
type PlaybackMemory struct {
	LastPlayedItem    string     `json:"last_played_item,omitempty"`
	LastPlayedContext string     `json:"last_played_context,omitempty"`
	Source            Source     `json:"source"`
	Shuffle           bool       `json:"shuffle"`
	Repeat            RepeatMode `json:"repeat"`
	PositionMs        int64      `json:"position_ms"`
	DurationMs        int64      `json:"duration_ms"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// PlayRequest describes a generic play command.
//
// An empty request replays what PlaybackMemory remembers. Items replaces the
// queue and starts at StartIndex. ContextID plays a remote collection.
type PlayRequest struct {
	ItemID     string
	Items      []string
	StartIndex int
	ContextID  string
	OffsetID   string
}

// IsEmpty reports whether the request names nothing to play.
func (r PlayRequest) IsEmpty() bool {
	return r.ItemID == "" && len(r.Items) == 0 && r.ContextID == ""
}

// RemoteItem is a minimal description of an item in the remote session.
type RemoteItem struct {
	URI      string
	Name     string
	PlayedAt time.Time
}

// RemoteReadiness is the "is the remote producer usable right now" signal.
type RemoteReadiness struct {
	Ready    bool
	Premium  bool
	DeviceID string
}

// RemoteState is what the remote session reports about itself.
type RemoteState struct {
	Playing    bool
	DeviceID   string
	ItemURI    string
	ContextURI string
	Shuffle    bool
	Repeat     RepeatMode
}

// TrackHandle is an opaque identifier for a loaded audio track.
type TrackHandle int64

// InvalidTrackHandle represents an invalid or unloaded track handle.
const InvalidTrackHandle TrackHandle = 0

// EngineStatus is the low-level status of a handle in the audio engine.
type EngineStatus int

const (
	EngineStopped EngineStatus = iota
	EnginePlaying
	EnginePaused
	EngineStalled
)

// String returns the string representation of the engine status.
func (s EngineStatus) String() string {
	switch s {
	case EnginePlaying:
		return "playing"
	case EnginePaused:
		return "paused"
	case EngineStalled:
		return "stalled"
	default:
		return "stopped"
	}
}

// TrackInfo is the metadata a local producer knows about the loaded file.
type TrackInfo struct {
	ItemID   string
	FilePath string
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
}

// NotificationLevel grades a user-visible notice.
type NotificationLevel int

const (
	NotifyInfo NotificationLevel = iota
	NotifyWarning
	NotifyError
)

// String returns the string representation of the level.
func (l NotificationLevel) String() string {
	switch l {
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "error"
	default:
		return "info"
	}
}

// Credential is a persisted OAuth credential for the remote service.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}
