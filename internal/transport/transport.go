package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrClosed     = errors.New("transport: closed")
	ErrInvalidURL = errors.New("transport: invalid url")
	ErrEmptyFrame = errors.New("transport: empty frame")
)

// Transport is one live duplex connection.
type Transport interface {
	// Receive blocks for the next whole message.
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, frame []byte) error
	// Close sends a close frame with code and reason. Repeated calls are no-ops.
	Close(code int, reason string) error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// CloseError reports that the peer closed the stream.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transport: closed by peer code=%d", e.Code)
	}
	return fmt.Sprintf("transport: closed by peer code=%d reason=%q", e.Code, e.Reason)
}

// AsCloseError extracts a peer close from err.
func AsCloseError(err error) (*CloseError, bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
