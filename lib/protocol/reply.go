package protocol

import (
	"fmt"

	"github.com/go-i2p/go-sam-session/lib/util"
)

// Token is a decoded reply. It is one of *HelloReply, *SessionStatus or
// *NamingReply.
type Token interface {
	// ResultCode returns the RESULT= value of the reply.
	ResultCode() string
	// Kind names the reply, e.g. "SESSION STATUS".
	Kind() string
	// RawLine returns the line the reply was decoded from, if any.
	RawLine() string
	token()
}

// HelloReply is HELLO REPLY RESULT=$result [VERSION=$version] [MESSAGE=$msg].
type HelloReply struct {
	Result  string
	Version string
	Message string
	Line    string
}

// SessionStatus is SESSION STATUS RESULT=$result [DESTINATION=$priv] [MESSAGE=$msg].
// On OK for a TRANSIENT request, Destination carries the router-generated
// private key.
type SessionStatus struct {
	Result      string
	Destination string
	Message     string
	Line        string
}

// NamingReply is NAMING REPLY RESULT=$result NAME=$name [VALUE=$dest] [MESSAGE=$msg].
type NamingReply struct {
	Result  string
	Name    string
	Value   string
	Message string
	Line    string
}

func (h *HelloReply) ResultCode() string    { return h.Result }
func (s *SessionStatus) ResultCode() string { return s.Result }
func (n *NamingReply) ResultCode() string   { return n.Result }

func (*HelloReply) Kind() string    { return VerbHello + " " + ActionReply }
func (*SessionStatus) Kind() string { return VerbSession + " " + ActionStatus }
func (*NamingReply) Kind() string   { return VerbNaming + " " + ActionReply }

func (h *HelloReply) RawLine() string    { return h.Line }
func (s *SessionStatus) RawLine() string { return s.Line }
func (n *NamingReply) RawLine() string   { return n.Line }

func (*HelloReply) token()    {}
func (*SessionStatus) token() {}
func (*NamingReply) token()   {}

// OK reports whether the reply carries RESULT=OK.
func OK(t Token) bool {
	return t != nil && t.ResultCode() == ResultOK
}

// Decode parses one reply line into a typed token.
// Any line that does not match the reply grammar fails with a
// *util.ProtocolSyntaxError; nothing is silently dropped.
func Decode(line string) (Token, error) {
	r, err := ParseLine(line)
	if err != nil {
		return nil, util.NewProtocolSyntaxError(line, err)
	}
	return DecodeReply(r)
}

// DecodeReply converts an already tokenized reply into a typed token.
func DecodeReply(r *Reply) (Token, error) {
	result := r.Get(KeyResult)
	if !KnownResults[result] {
		return nil, util.NewProtocolSyntaxError(r.Raw, fmt.Errorf("unknown result %q", result))
	}

	switch {
	case r.Verb == VerbHello && r.Action == ActionReply:
		return &HelloReply{
			Result:  result,
			Version: r.Get(KeyVersion),
			Message: r.Get(KeyMessage),
			Line:    r.Raw,
		}, nil
	case r.Verb == VerbSession && r.Action == ActionStatus:
		return &SessionStatus{
			Result:      result,
			Destination: r.Get(KeyDestination),
			Message:     r.Get(KeyMessage),
			Line:        r.Raw,
		}, nil
	case r.Verb == VerbNaming && r.Action == ActionReply:
		n := &NamingReply{
			Result:  result,
			Name:    r.Get(KeyName),
			Value:   r.Get(KeyValue),
			Message: r.Get(KeyMessage),
			Line:    r.Raw,
		}
		if n.Result == ResultOK && n.Value == "" {
			return nil, util.NewProtocolSyntaxError(r.Raw, fmt.Errorf("naming reply without VALUE"))
		}
		return n, nil
	default:
		return nil, util.NewProtocolSyntaxError(r.Raw, fmt.Errorf("unexpected reply %s %s", r.Verb, r.Action))
	}
}
