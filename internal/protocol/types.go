package protocol

import (
	"encoding/json"
	"strconv"
)

// Opcode identifies the envelope kind.
type Opcode int

const (
	OpDispatch       Opcode = 0
	OpHeartbeat      Opcode = 1
	OpIdentify       Opcode = 2
	OpPresenceUpdate Opcode = 3
	OpResume         Opcode = 6
	OpReconnect      Opcode = 7
	OpInvalidSession Opcode = 9
	OpHello          Opcode = 10
	OpHeartbeatAck   Opcode = 11
)

var opcodeNames = map[Opcode]string{
	OpDispatch:       "dispatch",
	OpHeartbeat:      "heartbeat",
	OpIdentify:       "identify",
	OpPresenceUpdate: "presence_update",
	OpResume:         "resume",
	OpReconnect:      "reconnect",
	OpInvalidSession: "invalid_session",
	OpHello:          "hello",
	OpHeartbeatAck:   "heartbeat_ack",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Known reports whether o is part of the opcode table this client speaks.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// Envelope is one decoded gateway frame.
type Envelope struct {
	Op       Opcode
	Sequence *uint64
	Event    string
	Data     json.RawMessage
}

// HasSequence reports whether the frame carried a sequence number.
func (e Envelope) HasSequence() bool {
	return e.Sequence != nil
}

// Hello is the payload of OpHello.
type Hello struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval"`
}

type wireEnvelope struct {
	Op   *int            `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  *uint64         `json:"s"`
	Type *string         `json:"t"`
}

type outboundEnvelope struct {
	Op   Opcode `json:"op"`
	Data any    `json:"d"`
}
