package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedEnvelope = errors.New("protocol: malformed envelope")
	ErrMissingOpcode     = errors.New("protocol: missing opcode")
	ErrUnexpectedOpcode  = errors.New("protocol: unexpected opcode")
	ErrInvalidPayload    = errors.New("protocol: invalid payload")
)

// DecodeError reports a frame that could not be decoded into an envelope.
// The raw frame is truncated to keep log lines bounded.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode frame (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(frame []byte, err error) *DecodeError {
	const maxKept = 256
	kept := frame
	if len(kept) > maxKept {
		kept = kept[:maxKept]
	}
	out := make([]byte, len(kept))
	copy(out, kept)
	return &DecodeError{Frame: out, Err: err}
}
