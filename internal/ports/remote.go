package ports

import (
	"context"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
)

// RemoteSession drives one remote playback device over a request/response protocol.
//
// Every call is a network round trip that either succeeds or fails once; there
// is no built-in retry. A rejected credential surfaces as an error for which
// errors.Is(err, domain.ErrUnauthorized) holds.
type RemoteSession interface {
	// Connect checks the account tier and resolves the target device.
	Connect(ctx context.Context) (domain.RemoteReadiness, error)

	// Readiness returns the last known readiness without a network call.
	Readiness() domain.RemoteReadiness

	// PlayItems plays a list of item URIs, starting at offsetURI when non-empty.
	PlayItems(ctx context.Context, deviceID string, uris []string, offsetURI string) error

	// PlayContext plays a named collection, starting at offsetURI when non-empty.
	PlayContext(ctx context.Context, deviceID, contextURI, offsetURI string) error

	Pause(ctx context.Context, deviceID string) error
	Resume(ctx context.Context, deviceID string) error
	Seek(ctx context.Context, deviceID string, positionMs int) error
	SetShuffle(ctx context.Context, deviceID string, shuffle bool) error
	SetRepeat(ctx context.Context, deviceID string, mode domain.RepeatMode) error
	SetVolume(ctx context.Context, deviceID string, percent int) error
	Next(ctx context.Context, deviceID string) error
	Previous(ctx context.Context, deviceID string) error

	// Queue returns the upcoming items in the remote session.
	Queue(ctx context.Context) ([]domain.RemoteItem, error)

	// RecentlyPlayed returns up to limit recently played items, newest first.
	RecentlyPlayed(ctx context.Context, limit int) ([]domain.RemoteItem, error)

	// State reports what the remote player is doing right now.
	State(ctx context.Context) (domain.RemoteState, error)
}

// CredentialProvider yields a currently valid bearer token for the remote service.
// Implementations refresh an expiring credential transparently and return
// domain.ErrUnauthorized when no refresh is possible.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}
