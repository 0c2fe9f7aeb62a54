package protocol

import "encoding/json"

// Encode builds an outbound frame. Outbound frames never carry s or t.
func Encode(op Opcode, payload any) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Op: op, Data: payload})
}

// EncodeHeartbeat builds an OpHeartbeat frame whose payload is the last seen
// sequence number, or null when none was seen.
func EncodeHeartbeat(seq uint64, ok bool) ([]byte, error) {
	if !ok {
		return Encode(OpHeartbeat, nil)
	}
	return Encode(OpHeartbeat, seq)
}
