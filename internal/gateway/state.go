package gateway

import "fmt"

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateResuming
	StateReady
	StateReconnecting
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateResuming:
		return "resuming"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handshaking reports whether the session is between Hello and Ready.
func (s State) Handshaking() bool {
	return s == StateIdentifying || s == StateResuming
}

// Final reports whether no further transitions except to Terminated occur.
func (s State) Final() bool {
	return s == StateShuttingDown || s == StateTerminated
}
