package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Decode parses one frame into an envelope. Only the envelope is validated;
// the payload stays raw so unknown events never fail the stream.
func Decode(frame []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, newDecodeError(frame, ErrMalformedEnvelope)
	}
	var wire wireEnvelope
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Envelope{}, newDecodeError(frame, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err))
	}
	if wire.Op == nil {
		return Envelope{}, newDecodeError(frame, ErrMissingOpcode)
	}
	env := Envelope{
		Op:       Opcode(*wire.Op),
		Sequence: wire.Seq,
		Data:     wire.Data,
	}
	if wire.Type != nil {
		env.Event = *wire.Type
	}
	if isJSONNull(env.Data) {
		env.Data = nil
	}
	return env, nil
}

// DecodeHello extracts the heartbeat interval announced by the peer.
func DecodeHello(env Envelope) (time.Duration, error) {
	if env.Op != OpHello {
		return 0, fmt.Errorf("%w: want %s got %s", ErrUnexpectedOpcode, OpHello, env.Op)
	}
	var hello Hello
	if err := json.Unmarshal(env.Data, &hello); err != nil {
		return 0, fmt.Errorf("%w: hello: %v", ErrInvalidPayload, err)
	}
	if hello.HeartbeatIntervalMS <= 0 {
		return 0, fmt.Errorf("%w: hello heartbeat_interval=%d", ErrInvalidPayload, hello.HeartbeatIntervalMS)
	}
	return time.Duration(hello.HeartbeatIntervalMS) * time.Millisecond, nil
}

// DecodeInvalidSession returns the resumable flag of OpInvalidSession.
// A missing payload is read as not resumable.
func DecodeInvalidSession(env Envelope) (bool, error) {
	if env.Op != OpInvalidSession {
		return false, fmt.Errorf("%w: want %s got %s", ErrUnexpectedOpcode, OpInvalidSession, env.Op)
	}
	if len(env.Data) == 0 {
		return false, nil
	}
	var resumable bool
	if err := json.Unmarshal(env.Data, &resumable); err != nil {
		return false, fmt.Errorf("%w: invalid_session: %v", ErrInvalidPayload, err)
	}
	return resumable, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
