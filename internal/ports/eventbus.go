// Package ports define the EventBus interface for event-driven communication.
// The event bus carries the interruption signals and every other lifecycle event.
package ports

import (
	"github.com/tejashwikalptaru/adzantune/internal/domain"
)

// EventBus is the interface for publishing and subscribing to events.
//
// The scheduler and the console publish announcement.start; the arbiter listens
// for it and publishes announcement.end/stop and iqomah.start/end as the
// prayer interruption progresses.
//
// Delivery is synchronous and in subscription order. A handler may publish
// again from inside its own invocation; implementations must not hold locks
// while calling handlers.
//
// Example usage:
//
//	subID := bus.Subscribe(domain.EventIqomahEnd, func(event domain.Event) {
//	    e := event.(domain.IqomahEndEvent)
//	    log.Println("iqomah over for", e.Prayer)
//	})
//	bus.Publish(domain.NewAnnouncementStartEvent(domain.PrayerDzuhur))
//	bus.Unsubscribe(subID)
type EventBus interface {
	// Publish delivers an event to all subscribers of its type, then to wildcard subscribers.
	Publish(event domain.Event)

	// Subscribe registers a handler for events of the specified type.
	// Each subscription gets a unique SubscriptionID.
	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// Unsubscribe removes exactly one previously registered handler.
	// The relative order of the remaining handlers is preserved.
	// If the subscription ID is invalid or already unsubscribed, this is a no-op.
	Unsubscribe(id domain.SubscriptionID)

	// SubscribeAll registers a handler that receives all events regardless of type.
	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID

	// HasSubscribers returns true if there are any active subscriptions for the given event type.
	HasSubscribers(eventType domain.EventType) bool

	// Close shuts down the event bus and cleans up resources.
	Close() error
}
