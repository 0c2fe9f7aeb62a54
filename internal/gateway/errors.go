package gateway

import (
	"errors"
	"fmt"

	"github.com/danmuck/gatewayctl/internal/protocol/session"
)

var (
	ErrAlreadyStarted       = errors.New("gateway: engine already started")
	ErrMissingToken         = errors.New("gateway: missing token")
	ErrHandshakeRejected    = errors.New("gateway: handshake rejected")
	ErrMaxReconnectAttempts = errors.New("gateway: reconnect attempts exhausted")
	ErrReconnectRequested   = errors.New("gateway: peer requested reconnect")
	ErrHelloTimeout         = errors.New("gateway: hello not received in time")
	ErrHandshakeTimeout     = errors.New("gateway: handshake not completed in time")
	ErrNotReady             = errors.New("gateway: session not ready")
	ErrSealed               = errors.New("gateway: send path sealed")
	ErrStaleConnection      = errors.New("gateway: connection no longer current")

	// ErrLivenessTimeout is returned when a heartbeat went unacknowledged.
	ErrLivenessTimeout = session.ErrLivenessTimeout
)

// TransportError wraps a failure of the underlying connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HandlerError is a failure raised by user code while handling one event.
type HandlerError struct {
	Event string
	Panic bool
	Err   error
}

func (e *HandlerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("gateway: handler panic event=%s: %v", e.Event, e.Err)
	}
	return fmt.Sprintf("gateway: handler error event=%s: %v", e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
