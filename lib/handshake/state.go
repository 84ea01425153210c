// Package handshake drives the SAM session creation exchange:
//
//	[HELLO VERSION ->] SESSION CREATE -> NAMING LOOKUP NAME=ME
//
// The exchange is a closed set of states advanced by a pure transition
// function. Run binds that function to a control connection.
package handshake

// State is a position in the session creation handshake.
type State int

const (
	// StateStart is the initial state before any command is sent.
	StateStart State = iota
	// StateAwaitingHello waits for HELLO REPLY. Only entered when the
	// request negotiates a protocol version.
	StateAwaitingHello
	// StateAwaitingCreateResult waits for SESSION STATUS.
	StateAwaitingCreateResult
	// StateAwaitingDestination waits for the NAMING REPLY for ME.
	StateAwaitingDestination
	// StateEstablished is terminal: the session exists and its destination is known.
	StateEstablished
	// StateFailed is terminal: the handshake was abandoned.
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateAwaitingHello:
		return "AWAITING_HELLO"
	case StateAwaitingCreateResult:
		return "AWAITING_CREATE_RESULT"
	case StateAwaitingDestination:
		return "AWAITING_DESTINATION"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateEstablished || s == StateFailed
}
