// Package domain defines events for the event-driven architecture.
// Events decouple the interrupting producers, the scheduler and the arbiter.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Interruption signals
	EventAnnouncementStart EventType = "announcement.start"
	EventAnnouncementEnd   EventType = "announcement.end"
	EventAnnouncementStop  EventType = "announcement.stop"
	EventIqomahStart       EventType = "iqomah.start"
	EventIqomahEnd         EventType = "iqomah.end"

	// Advertisement events
	EventAdStarted EventType = "ad.started"
	EventAdEnded   EventType = "ad.ended"

	// Arbitration events
	EventStatusChanged EventType = "status.changed"
	EventAuthRequired  EventType = "auth.required"
	EventNotification  EventType = "notification"

	// Local playback events
	EventTrackStarted  EventType = "track.started"
	EventTrackPaused   EventType = "track.paused"
	EventTrackStopped  EventType = "track.stopped"
	EventTrackProgress EventType = "track.progress"
	EventTrackError    EventType = "track.error"

	// Queue events
	EventQueueChanged        EventType = "queue.changed"
	EventPlaybackModeChanged EventType = "playback_mode.changed"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// AnnouncementStartEvent asks the arbiter to begin a prayer announcement.
type AnnouncementStartEvent struct {
	baseEvent
	Prayer string
}

// Type returns the event type.
func (e AnnouncementStartEvent) Type() EventType {
	return EventAnnouncementStart
}

// NewAnnouncementStartEvent creates a new AnnouncementStartEvent.
func NewAnnouncementStartEvent(prayer string) AnnouncementStartEvent {
	return AnnouncementStartEvent{
		baseEvent: newBaseEvent(),
		Prayer:    prayer,
	}
}

// AnnouncementEndEvent is published when the adzan clip finishes naturally.
type AnnouncementEndEvent struct {
	baseEvent
	Prayer string
}

// Type returns the event type.
func (e AnnouncementEndEvent) Type() EventType {
	return EventAnnouncementEnd
}

// NewAnnouncementEndEvent creates a new AnnouncementEndEvent.
func NewAnnouncementEndEvent(prayer string) AnnouncementEndEvent {
	return AnnouncementEndEvent{
		baseEvent: newBaseEvent(),
		Prayer:    prayer,
	}
}

// AnnouncementStopEvent is published when the adzan is dismissed before it ends.
type AnnouncementStopEvent struct {
	baseEvent
	Prayer string
}

// Type returns the event type.
func (e AnnouncementStopEvent) Type() EventType {
	return EventAnnouncementStop
}

// NewAnnouncementStopEvent creates a new AnnouncementStopEvent.
func NewAnnouncementStopEvent(prayer string) AnnouncementStopEvent {
	return AnnouncementStopEvent{
		baseEvent: newBaseEvent(),
		Prayer:    prayer,
	}
}

// IqomahStartEvent opens the iqomah countdown.
type IqomahStartEvent struct {
	baseEvent
	Prayer string
	Delay  time.Duration
}

// Type returns the event type.
func (e IqomahStartEvent) Type() EventType {
	return EventIqomahStart
}

// NewIqomahStartEvent creates a new IqomahStartEvent.
func NewIqomahStartEvent(prayer string, delay time.Duration) IqomahStartEvent {
	return IqomahStartEvent{
		baseEvent: newBaseEvent(),
		Prayer:    prayer,
		Delay:     delay,
	}
}

// IqomahEndEvent closes the prayer interruption.
type IqomahEndEvent struct {
	baseEvent
	Prayer string
	Forced bool
}

// Type returns the event type.
func (e IqomahEndEvent) Type() EventType {
	return EventIqomahEnd
}

// NewIqomahEndEvent creates a new IqomahEndEvent.
func NewIqomahEndEvent(prayer string, forced bool) IqomahEndEvent {
	return IqomahEndEvent{
		baseEvent: newBaseEvent(),
		Prayer:    prayer,
		Forced:    forced,
	}
}

// AdStartedEvent is published when an advertisement takes the speaker.
type AdStartedEvent struct {
	baseEvent
	AdID string
}

// Type returns the event type.
func (e AdStartedEvent) Type() EventType {
	return EventAdStarted
}

// NewAdStartedEvent creates a new AdStartedEvent.
func NewAdStartedEvent(adID string) AdStartedEvent {
	return AdStartedEvent{
		baseEvent: newBaseEvent(),
		AdID:      adID,
	}
}

// AdEndedEvent is published when an advertisement releases the speaker.
type AdEndedEvent struct {
	baseEvent
	AdID   string
	Forced bool
}

// Type returns the event type.
func (e AdEndedEvent) Type() EventType {
	return EventAdEnded
}

// NewAdEndedEvent creates a new AdEndedEvent.
func NewAdEndedEvent(adID string, forced bool) AdEndedEvent {
	return AdEndedEvent{
		baseEvent: newBaseEvent(),
		AdID:      adID,
		Forced:    forced,
	}
}

// StatusChangedEvent is published after every arbitration transition.
type StatusChangedEvent struct {
	baseEvent
	From PlaybackStatus
	To   PlaybackStatus
}

// Type returns the event type.
func (e StatusChangedEvent) Type() EventType {
	return EventStatusChanged
}

// NewStatusChangedEvent creates a new StatusChangedEvent.
func NewStatusChangedEvent(from, to PlaybackStatus) StatusChangedEvent {
	return StatusChangedEvent{
		baseEvent: newBaseEvent(),
		From:      from,
		To:        to,
	}
}

// AuthRequiredEvent is published when the remote credential is rejected.
type AuthRequiredEvent struct {
	baseEvent
	Err error
}

// Type returns the event type.
func (e AuthRequiredEvent) Type() EventType {
	return EventAuthRequired
}

// NewAuthRequiredEvent creates a new AuthRequiredEvent.
func NewAuthRequiredEvent(err error) AuthRequiredEvent {
	return AuthRequiredEvent{
		baseEvent: newBaseEvent(),
		Err:       err,
	}
}

// NotificationEvent mirrors a user-visible notice onto the bus.
type NotificationEvent struct {
	baseEvent
	Level   NotificationLevel
	Message string
}

// Type returns the event type.
func (e NotificationEvent) Type() EventType {
	return EventNotification
}

// NewNotificationEvent creates a new NotificationEvent.
func NewNotificationEvent(level NotificationLevel, message string) NotificationEvent {
	return NotificationEvent{
		baseEvent: newBaseEvent(),
		Level:     level,
		Message:   message,
	}
}

// TrackStartedEvent is published when local playback starts.
type TrackStartedEvent struct {
	baseEvent
	Track TrackInfo
}

// Type returns the event type.
func (e TrackStartedEvent) Type() EventType {
	return EventTrackStarted
}

// NewTrackStartedEvent creates a new TrackStartedEvent.
func NewTrackStartedEvent(track TrackInfo) TrackStartedEvent {
	return TrackStartedEvent{
		baseEvent: newBaseEvent(),
		Track:     track,
	}
}

// TrackPausedEvent is published when local playback is paused.
type TrackPausedEvent struct {
	baseEvent
	Track    TrackInfo
	Position time.Duration
}

// Type returns the event type.
func (e TrackPausedEvent) Type() EventType {
	return EventTrackPaused
}

// NewTrackPausedEvent creates a new TrackPausedEvent.
func NewTrackPausedEvent(track TrackInfo, position time.Duration) TrackPausedEvent {
	return TrackPausedEvent{
		baseEvent: newBaseEvent(),
		Track:     track,
		Position:  position,
	}
}

// TrackStoppedEvent is published when local playback is stopped.
type TrackStoppedEvent struct {
	baseEvent
	Track TrackInfo
}

// Type returns the event type.
func (e TrackStoppedEvent) Type() EventType {
	return EventTrackStopped
}

// NewTrackStoppedEvent creates a new TrackStoppedEvent.
func NewTrackStoppedEvent(track TrackInfo) TrackStoppedEvent {
	return TrackStoppedEvent{
		baseEvent: newBaseEvent(),
		Track:     track,
	}
}

// TrackProgressEvent is published by the local position tick.
type TrackProgressEvent struct {
	baseEvent
	ItemID   string
	Position time.Duration
	Duration time.Duration
}

// Type returns the event type.
func (e TrackProgressEvent) Type() EventType {
	return EventTrackProgress
}

// NewTrackProgressEvent creates a new TrackProgressEvent.
func NewTrackProgressEvent(itemID string, position, duration time.Duration) TrackProgressEvent {
	return TrackProgressEvent{
		baseEvent: newBaseEvent(),
		ItemID:    itemID,
		Position:  position,
		Duration:  duration,
	}
}

// TrackErrorEvent is published when a local item cannot be loaded or played.
type TrackErrorEvent struct {
	baseEvent
	ItemID string
	Error  error
}

// Type returns the event type.
func (e TrackErrorEvent) Type() EventType {
	return EventTrackError
}

// NewTrackErrorEvent creates a new TrackErrorEvent.
func NewTrackErrorEvent(itemID string, err error) TrackErrorEvent {
	return TrackErrorEvent{
		baseEvent: newBaseEvent(),
		ItemID:    itemID,
		Error:     err,
	}
}

// QueueChangedEvent is published whenever the queue contents or cursor move.
type QueueChangedEvent struct {
	baseEvent
	Items  []string
	Source Source
	Cursor int
}

// Type returns the event type.
func (e QueueChangedEvent) Type() EventType {
	return EventQueueChanged
}

// NewQueueChangedEvent creates a new QueueChangedEvent.
func NewQueueChangedEvent(items []string, source Source, cursor int) QueueChangedEvent {
	return QueueChangedEvent{
		baseEvent: newBaseEvent(),
		Items:     items,
		Source:    source,
		Cursor:    cursor,
	}
}

// PlaybackModeChangedEvent is published when shuffle or repeat changes.
type PlaybackModeChangedEvent struct {
	baseEvent
	Shuffle bool
	Repeat  RepeatMode
}

// Type returns the event type.
func (e PlaybackModeChangedEvent) Type() EventType {
	return EventPlaybackModeChanged
}

// NewPlaybackModeChangedEvent creates a new PlaybackModeChangedEvent.
func NewPlaybackModeChangedEvent(shuffle bool, repeat RepeatMode) PlaybackModeChangedEvent {
	return PlaybackModeChangedEvent{
		baseEvent: newBaseEvent(),
		Shuffle:   shuffle,
		Repeat:    repeat,
	}
}
