package platform

import (
	"errors"
	"fmt"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/models"
)

// ErrValidation marks requests rejected before any remote call.
var ErrValidation = errors.New("validation failed")

// Connect failure kinds.
var (
	ErrInvalidCredentials          = errors.New("invalid credentials")
	ErrRemoteAccountCreationFailed = errors.New("remote account creation failed")
	ErrDeploymentFailed            = errors.New("deployment failed")
	ErrSynchronizationTimeout      = errors.New("synchronization timeout")
	ErrServiceNotInitialized       = errors.New("service not initialized")
	ErrRemoteUnavailable           = errors.New("remote service unavailable")
)

// Session failure kinds.
var (
	ErrNotConnected     = errors.New("session not connected")
	ErrRemoteCallFailed = errors.New("remote call failed")
)

// ConnectError is returned by Client.Connect. Kind is one of the connect failure kinds and
// Details keeps the vendor message for logging.
type ConnectError struct {
	Platform models.Platform
	Kind     error
	Details  string
}

func (e *ConnectError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s connect: %v", e.Platform, e.Kind)
	}
	return fmt.Sprintf("%s connect: %v: %s", e.Platform, e.Kind, e.Details)
}

func (e *ConnectError) Unwrap() error { return e.Kind }

// NewConnectError builds a ConnectError from a kind and a free-form detail message.
func NewConnectError(p models.Platform, kind error, format string, args ...any) *ConnectError {
	return &ConnectError{Platform: p, Kind: kind, Details: fmt.Sprintf(format, args...)}
}

// SessionError is returned by the session operations of a Client.
type SessionError struct {
	Platform models.Platform
	Kind     error
	Details  string
}

func (e *SessionError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s session: %v", e.Platform, e.Kind)
	}
	return fmt.Sprintf("%s session: %v: %s", e.Platform, e.Kind, e.Details)
}

func (e *SessionError) Unwrap() error { return e.Kind }

// NotConnected is the error for calls made on a closed or foreign session.
func NotConnected(p models.Platform) *SessionError {
	return &SessionError{Platform: p, Kind: ErrNotConnected}
}

// RemoteCallFailed wraps a vendor failure, keeping only its message.
func RemoteCallFailed(p models.Platform, op string, err error) *SessionError {
	return &SessionError{Platform: p, Kind: ErrRemoteCallFailed, Details: fmt.Sprintf("%s: %v", op, err)}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
