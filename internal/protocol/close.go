package protocol

// CloseCode is a websocket close status as used by the gateway.
type CloseCode int

const (
	CloseNormal    CloseCode = 1000
	CloseGoingAway CloseCode = 1001
	CloseAbnormal  CloseCode = 1006

	CloseUnknownError         CloseCode = 4000
	CloseUnknownOpcode        CloseCode = 4001
	CloseDecodeError          CloseCode = 4002
	CloseNotAuthenticated     CloseCode = 4003
	CloseAuthenticationFailed CloseCode = 4004
	CloseAlreadyAuthenticated CloseCode = 4005
	CloseInvalidSeq           CloseCode = 4007
	CloseRateLimited          CloseCode = 4008
	CloseSessionTimedOut      CloseCode = 4009
	CloseInvalidShard         CloseCode = 4010
	CloseShardingRequired     CloseCode = 4011
	CloseInvalidAPIVersion    CloseCode = 4012
	CloseInvalidIntents       CloseCode = 4013
	CloseDisallowedIntents    CloseCode = 4014

	// CloseReconnect is sent by this client when it drops a connection it
	// intends to resume. Any code other than 1000/1001 keeps the session alive
	// on the peer.
	CloseReconnect CloseCode = 4900
)

// Fatal reports whether the peer refused the session for a reason a retry
// cannot fix (bad credentials, bad configuration).
func (c CloseCode) Fatal() bool {
	switch c {
	case CloseAuthenticationFailed,
		CloseInvalidShard,
		CloseShardingRequired,
		CloseInvalidAPIVersion,
		CloseInvalidIntents,
		CloseDisallowedIntents:
		return true
	}
	return false
}

// InvalidatesSession reports whether the close means the stored session can
// no longer be resumed.
func (c CloseCode) InvalidatesSession() bool {
	switch c {
	case CloseInvalidSeq, CloseSessionTimedOut:
		return true
	}
	return false
}

func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal"
	case CloseGoingAway:
		return "going_away"
	case CloseAbnormal:
		return "abnormal"
	case CloseUnknownError:
		return "unknown_error"
	case CloseUnknownOpcode:
		return "unknown_opcode"
	case CloseDecodeError:
		return "decode_error"
	case CloseNotAuthenticated:
		return "not_authenticated"
	case CloseAuthenticationFailed:
		return "authentication_failed"
	case CloseAlreadyAuthenticated:
		return "already_authenticated"
	case CloseInvalidSeq:
		return "invalid_seq"
	case CloseRateLimited:
		return "rate_limited"
	case CloseSessionTimedOut:
		return "session_timed_out"
	case CloseInvalidShard:
		return "invalid_shard"
	case CloseShardingRequired:
		return "sharding_required"
	case CloseInvalidAPIVersion:
		return "invalid_api_version"
	case CloseInvalidIntents:
		return "invalid_intents"
	case CloseDisallowedIntents:
		return "disallowed_intents"
	case CloseReconnect:
		return "reconnect"
	}
	return "unknown"
}
