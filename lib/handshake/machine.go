package handshake

import (
	"fmt"

	"github.com/go-i2p/go-sam-session/lib/protocol"
	"github.com/go-i2p/go-sam-session/lib/util"
)

// Stage names used in SessionCreationError.
const (
	stageHello  = "HELLO VERSION"
	stageCreate = "SESSION CREATE"
	stageLookup = "NAMING LOOKUP"
)

// Effect is what a transition asks its driver to do.
type Effect struct {
	// Send is the next command to write, or nil.
	Send *protocol.Command

	// PrivateKey is set when SESSION STATUS returned the router's copy of
	// the session key.
	PrivateKey string

	// Destination is set on the transition into StateEstablished.
	Destination string

	// Err is set on the transition into StateFailed.
	Err error
}

// Begin performs the StateStart transition for req.
func Begin(req *Request) (State, Effect) {
	if req.Negotiates() {
		return StateAwaitingHello, Effect{Send: protocol.HelloVersion(req.MinVersion, req.MaxVersion)}
	}
	return StateAwaitingCreateResult, Effect{Send: createCommand(req)}
}

// Transition advances the handshake by one reply. It has no side effects:
// the returned Effect tells the caller what to write or record.
// Replies that do not belong to the current state fail the handshake.
func Transition(req *Request, state State, tok protocol.Token) (State, Effect) {
	nick := req.EffectiveNickname()

	switch state {
	case StateAwaitingHello:
		hello, ok := tok.(*protocol.HelloReply)
		if !ok {
			return unexpected(state, tok)
		}
		if hello.Result != protocol.ResultOK {
			return StateFailed, Effect{Err: util.NewSessionCreationError(nick, stageHello, hello.Result, hello.Message)}
		}
		return StateAwaitingCreateResult, Effect{Send: createCommand(req)}

	case StateAwaitingCreateResult:
		status, ok := tok.(*protocol.SessionStatus)
		if !ok {
			return unexpected(state, tok)
		}
		if status.Result != protocol.ResultOK {
			return StateFailed, Effect{Err: util.NewSessionCreationError(nick, stageCreate, status.Result, status.Message)}
		}
		return StateAwaitingDestination, Effect{
			Send:       protocol.NamingLookup(protocol.NameMe),
			PrivateKey: status.Destination,
		}

	case StateAwaitingDestination:
		reply, ok := tok.(*protocol.NamingReply)
		if !ok {
			return unexpected(state, tok)
		}
		if reply.Result != protocol.ResultOK {
			return StateFailed, Effect{Err: util.NewSessionCreationError(nick, stageLookup, reply.Result, reply.Message)}
		}
		return StateEstablished, Effect{Destination: reply.Value}

	default:
		return StateFailed, Effect{Err: fmt.Errorf("handshake: no transition out of %s", state)}
	}
}

func createCommand(req *Request) *protocol.Command {
	return protocol.SessionCreate(protocol.StyleStream, req.EffectiveNickname(), req.PrivateKey, req.Options)
}

func unexpected(state State, tok protocol.Token) (State, Effect) {
	return StateFailed, Effect{
		Err: util.NewProtocolSyntaxError(tok.RawLine(), fmt.Errorf("unexpected %s in state %s", tok.Kind(), state)),
	}
}

// Machine accumulates the outcome of successive transitions.
// It is not safe for concurrent use; one handshake owns one Machine.
type Machine struct {
	req         Request
	state       State
	privateKey  string
	destination string
	err         error
}

// NewMachine creates a Machine for a copy of req.
func NewMachine(req Request) *Machine {
	return &Machine{
		req:        req.clone(),
		state:      StateStart,
		privateKey: req.PrivateKey,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Nickname returns the nickname the handshake uses.
func (m *Machine) Nickname() string { return m.req.Nickname }

// Err returns the failure, once in StateFailed.
func (m *Machine) Err() error { return m.err }

// Start leaves StateStart and returns the first command to send.
func (m *Machine) Start() *protocol.Command {
	if m.state != StateStart {
		return nil
	}
	next, eff := Begin(&m.req)
	m.apply(next, eff)
	return eff.Send
}

// Handle feeds one reply to the machine and returns the next command to
// send, if any.
func (m *Machine) Handle(tok protocol.Token) *protocol.Command {
	if m.state.Terminal() {
		return nil
	}
	next, eff := Transition(&m.req, m.state, tok)
	m.apply(next, eff)
	return eff.Send
}

// Fail forces the machine into StateFailed, e.g. on a transport error.
// It has no effect once the machine is terminal.
func (m *Machine) Fail(err error) {
	if m.state.Terminal() {
		return
	}
	m.state = StateFailed
	m.err = err
}

// Result returns the handshake outcome once established.
func (m *Machine) Result() (*Result, bool) {
	if m.state != StateEstablished {
		return nil, false
	}
	return &Result{
		Nickname:    m.req.Nickname,
		Destination: m.destination,
		PrivateKey:  m.privateKey,
		Generated:   m.req.PrivateKey == "",
	}, true
}

func (m *Machine) apply(next State, eff Effect) {
	m.state = next
	if eff.PrivateKey != "" && m.req.PrivateKey == "" {
		m.privateKey = eff.PrivateKey
	}
	if eff.Destination != "" {
		m.destination = eff.Destination
	}
	if eff.Err != nil {
		m.err = eff.Err
	}
}

// Result is the outcome of an established handshake.
type Result struct {
	// Nickname is the session ID registered with the router.
	Nickname string
	// Destination is the session's public destination (Base64).
	Destination string
	// PrivateKey is the key blob in use: the one supplied in the request,
	// or the router-generated one for a TRANSIENT request.
	PrivateKey string
	// Generated is true when the router generated the key.
	Generated bool
}
