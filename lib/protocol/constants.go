// Package protocol implements the client side of the SAM v3 line protocol:
// building outbound commands and decoding the router's replies.
// See SAMv3.md for the complete protocol specification.
package protocol

// SAM Protocol Verbs used by the session handshake.
const (
	VerbHello   = "HELLO"
	VerbSession = "SESSION"
	VerbNaming  = "NAMING"
)

// SAM Protocol Actions used by the session handshake.
const (
	ActionVersion = "VERSION"
	ActionReply   = "REPLY"
	ActionStatus  = "STATUS"
	ActionCreate  = "CREATE"
	ActionLookup  = "LOOKUP"
)

// SAM Result Codes per SAM 3.0-3.3 specification.
// These are returned in the RESULT= field of replies.
const (
	ResultOK             = "OK"
	ResultDuplicatedDest = "DUPLICATED_DEST"
	ResultDuplicatedID   = "DUPLICATED_ID"
	ResultI2PError       = "I2P_ERROR"
	ResultInvalidKey     = "INVALID_KEY"
	ResultInvalidID      = "INVALID_ID"
	ResultKeyNotFound    = "KEY_NOT_FOUND"
	ResultTimeout        = "TIMEOUT"
	ResultNoVersion      = "NOVERSION"
)

// KnownResults is the closed set of result codes a SESSION STATUS,
// NAMING REPLY or HELLO REPLY may carry. Anything else is a syntax error.
var KnownResults = map[string]bool{
	ResultOK:             true,
	ResultDuplicatedDest: true,
	ResultDuplicatedID:   true,
	ResultI2PError:       true,
	ResultInvalidKey:     true,
	ResultInvalidID:      true,
	ResultKeyNotFound:    true,
	ResultTimeout:        true,
	ResultNoVersion:      true,
}

// Option keys that appear in commands and replies.
const (
	KeyStyle       = "STYLE"
	KeyID          = "ID"
	KeyDestination = "DESTINATION"
	KeyResult      = "RESULT"
	KeyMessage     = "MESSAGE"
	KeyName        = "NAME"
	KeyValue       = "VALUE"
	KeyVersion     = "VERSION"
	KeyMin         = "MIN"
	KeyMax         = "MAX"
)

// ReservedOptionKeys may not be supplied as caller options on SESSION CREATE;
// the handshake fills them in itself.
var ReservedOptionKeys = map[string]bool{
	KeyStyle:       true,
	KeyID:          true,
	KeyDestination: true,
}

// SAM Session Styles. Only STREAM sessions are created by this module.
const (
	StyleStream = "STREAM"
)

// DestinationTransient asks the router to generate a fresh keypair.
const DestinationTransient = "TRANSIENT"

// NameMe resolves to the session's own destination in NAMING LOOKUP.
const NameMe = "ME"

// SAM Default Ports per SAM specification.
const (
	DefaultSAMPort = 7656
	DefaultSAMHost = "127.0.0.1"
)

// DefaultMaxLineLength bounds a single inbound reply line.
const DefaultMaxLineLength = 65536

// SAM Version constants.
const (
	SAMVersionMin = "3.0"
	SAMVersionMax = "3.3"
)
