// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors that services can return.
var (
	// ErrPrayerInProgress is returned when a command arrives during a prayer interruption.
	ErrPrayerInProgress = errors.New("prayer time in progress")

	// ErrAdvertisementInProgress is returned when a command arrives while an ad is playing.
	ErrAdvertisementInProgress = errors.New("advertisement in progress")

	// ErrInterrupted is returned when an interruption began while a command was
	// starting a producer.
	ErrInterrupted = errors.New("command superseded by an interruption")

	// ErrTrackEnded is returned when resuming an item that already played to its end.
	ErrTrackEnded = errors.New("track already ended")

	// ErrUpgradeRequired is returned when remote control is attempted on a free-tier account.
	ErrUpgradeRequired = errors.New("remote playback requires a premium account")

	// ErrRemoteNotReady is returned when the remote session has no usable device yet.
	ErrRemoteNotReady = errors.New("remote player not ready")

	// ErrUnauthorized is returned when the remote credential is invalid and cannot be refreshed.
	ErrUnauthorized = errors.New("remote authorization invalid")

	// ErrBasePathUnset is returned when a local item is resolved without a base directory.
	ErrBasePathUnset = errors.New("base path not configured")

	// ErrNothingToPlay is returned by an empty play command with nothing remembered.
	ErrNothingToPlay = errors.New("nothing to play")

	// ErrInvalidTrackHandle is returned when an invalid track handle is used.
	ErrInvalidTrackHandle = errors.New("invalid track handle")

	// ErrInvalidVolume is returned when the volume is out of valid range (0.0-1.0).
	ErrInvalidVolume = errors.New("invalid volume: must be between 0.0 and 1.0")

	// ErrInvalidPosition is returned when seeking to an invalid position.
	ErrInvalidPosition = errors.New("invalid playback position")

	// ErrNotInitialized is returned when an operation is attempted on an uninitialized component.
	ErrNotInitialized = errors.New("component not initialized")

	// ErrAlreadyInitialized is returned when attempting to initialize an already initialized component.
	ErrAlreadyInitialized = errors.New("component already initialized")

	// ErrUnsupportedFormat is returned when an audio file format is not supported.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrInvalidFilePath is returned when a file path is invalid.
	ErrInvalidFilePath = errors.New("invalid file path")

	// ErrNoTrackLoaded is returned when playback control is attempted with no track loaded.
	ErrNoTrackLoaded = errors.New("no track loaded")

	// ErrScheduleUnavailable is returned when no schedule exists for the requested date.
	ErrScheduleUnavailable = errors.New("prayer schedule unavailable")

	// ErrNotFound is returned by repositories for missing records.
	ErrNotFound = errors.New("not found")
)

// AudioEngineError represents an error from the audio engine.
// This wraps low-level audio library errors with additional context.
type AudioEngineError struct {
	Op      string // Operation that failed (e.g., "load", "play", "stop")
	Path    string // File path (if applicable)
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AudioEngineError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("audio engine %s failed for '%s': %s", e.Op, e.Path, e.Message)
	}
	return fmt.Sprintf("audio engine %s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *AudioEngineError) Unwrap() error {
	return e.Err
}

// NewAudioEngineError creates a new AudioEngineError.
func NewAudioEngineError(op, path, message string, err error) *AudioEngineError {
	return &AudioEngineError{
		Op:      op,
		Path:    path,
		Message: message,
		Err:     err,
	}
}

// RemoteError represents a failed call to the remote playback session.
type RemoteError struct {
	Op     string // Operation that failed (e.g., "pause", "play_context")
	Status int    // HTTP status, 0 for transport errors
	Err    error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

// Unwrap returns ErrUnauthorized for 401 responses so callers can use errors.Is.
func (e *RemoteError) Unwrap() []error {
	if e.Status == http.StatusUnauthorized {
		return []error{ErrUnauthorized, e.Err}
	}
	return []error{e.Err}
}

// NewRemoteError creates a new RemoteError.
func NewRemoteError(op string, status int, err error) *RemoteError {
	return &RemoteError{Op: op, Status: status, Err: err}
}

// RepositoryError represents an error from a repository.
// This wraps persistence layer errors with additional context.
type RepositoryError struct {
	Op      string // Operation that failed (e.g., "save", "load", "prune")
	Type    string // Repository type (e.g., "ledger", "memory", "token")
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s.%s failed: %s", e.Type, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new RepositoryError.
func NewRepositoryError(op, repoType, message string, err error) *RepositoryError {
	return &RepositoryError{
		Op:      op,
		Type:    repoType,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ServiceError represents an error from a service layer operation.
type ServiceError struct {
	Service string // Service name (e.g., "Arbitrator", "LocalPlayer")
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s.%s failed: %s", e.Service, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, message string, err error) *ServiceError {
	return &ServiceError{
		Service: service,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
