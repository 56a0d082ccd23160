// Package notify provides Notifier sinks: structured log plus event bus,
// desktop notifications, and a fan-out.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// LogNotifier logs every notice and republishes it as a NotificationEvent
// so the console can print it.
type LogNotifier struct {
	logger *slog.Logger
	bus    ports.EventBus
}

// NewLogNotifier creates a LogNotifier. bus may be nil.
func NewLogNotifier(logger *slog.Logger, bus ports.EventBus) *LogNotifier {
	return &LogNotifier{logger: logger, bus: bus}
}

// Notify implements ports.Notifier.
func (n *LogNotifier) Notify(level domain.NotificationLevel, message string) {
	attr := slog.String("notice", message)
	switch level {
	case domain.NotifyError:
		n.logger.Error("notification", attr)
	case domain.NotifyWarning:
		n.logger.Warn("notification", attr)
	default:
		n.logger.Info("notification", attr)
	}

	if n.bus != nil {
		n.bus.Publish(domain.NewNotificationEvent(level, message))
	}
}

// DesktopNotifier pops an OS notification.
type DesktopNotifier struct {
	logger *slog.Logger
	title  string
	send   func(title, message string) error
}

// NewDesktopNotifier creates a DesktopNotifier using beeep.
func NewDesktopNotifier(logger *slog.Logger, title string) *DesktopNotifier {
	return &DesktopNotifier{
		logger: logger,
		title:  title,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Notify implements ports.Notifier. Delivery failures are logged only.
func (n *DesktopNotifier) Notify(level domain.NotificationLevel, message string) {
	title := n.title
	if level != domain.NotifyInfo {
		title = n.title + " (" + level.String() + ")"
	}
	if err := n.send(title, message); err != nil {
		n.logger.Debug("desktop notification failed", slog.Any("error", err))
	}
}

// Multi fans a notice out to several notifiers in order.
type Multi []ports.Notifier

// Notify implements ports.Notifier.
func (m Multi) Notify(level domain.NotificationLevel, message string) {
	for _, n := range m {
		n.Notify(level, message)
	}
}

var (
	_ ports.Notifier = (*LogNotifier)(nil)
	_ ports.Notifier = (*DesktopNotifier)(nil)
	_ ports.Notifier = Multi(nil)
)
