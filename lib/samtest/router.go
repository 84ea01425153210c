// Package samtest provides an in-memory SAM router for tests.
//
// A Router answers HELLO VERSION, SESSION CREATE and NAMING LOOKUP on
// net.Pipe connections handed out by Dial. Session IDs are released when
// their control connection closes, matching SAM semantics.
package samtest

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-i2p/go-sam-session/lib/protocol"
)

// Router is a scripted SAM router. Zero value is not usable; use NewRouter.
type Router struct {
	mu sync.Mutex

	// Destination is returned for NAMING LOOKUP NAME=ME.
	Destination string

	// GeneratedKey is returned in SESSION STATUS for TRANSIENT requests.
	GeneratedKey string

	// CreateResult and CreateMessage override the SESSION STATUS reply.
	CreateResult  string
	CreateMessage string

	// HelloResult overrides the HELLO REPLY result.
	HelloResult string

	// RawCreateReply, if set, is written verbatim instead of SESSION STATUS.
	RawCreateReply string

	// Gate, if non-nil, is received from before answering SESSION CREATE.
	Gate chan struct{}

	// DialErr, if set, makes Dial fail.
	DialErr error

	received []string
	creates  int
	dials    int
	active   map[string]bool
	conns    []net.Conn
}

// NewRouter creates a Router that accepts every session.
func NewRouter() *Router {
	return &Router{
		Destination:  "abcd...xyz",
		GeneratedKey: "GENERATED~PRIVATE-KEY",
		CreateResult: protocol.ResultOK,
		HelloResult:  protocol.ResultOK,
		active:       make(map[string]bool),
	}
}

// Dial returns the client end of a fresh control connection.
// Its signature matches net.Dialer.DialContext.
func (r *Router) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	r.mu.Lock()
	r.dials++
	dialErr := r.DialErr
	r.mu.Unlock()

	if dialErr != nil {
		return nil, dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, server := net.Pipe()
	r.mu.Lock()
	r.conns = append(r.conns, server)
	r.mu.Unlock()

	go r.serve(server)
	return client, nil
}

// Received returns every command line received so far, without newlines.
func (r *Router) Received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.received))
	copy(out, r.received)
	return out
}

// Creates returns how many SESSION CREATE commands were received.
func (r *Router) Creates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// Dials returns how many connections were requested.
func (r *Router) Dials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

// Active reports whether a session with id is currently held open.
func (r *Router) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[id]
}

// Close drops every control connection.
func (r *Router) Close() {
	r.mu.Lock()
	conns := r.conns
	r.conns = nil
	r.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (r *Router) serve(conn net.Conn) {
	defer conn.Close()

	var sessionID string
	defer func() {
		if sessionID != "" {
			r.mu.Lock()
			delete(r.active, sessionID)
			r.mu.Unlock()
		}
	}()

	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		r.mu.Lock()
		r.received = append(r.received, line)
		r.mu.Unlock()

		reply, id := r.answer(line)
		if id != "" {
			sessionID = id
		}
		if reply == "" {
			continue
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

// answer builds the reply for one command, returning the session ID it
// registered, if any.
func (r *Router) answer(line string) (string, string) {
	cmd, err := protocol.ParseLine(line)
	if err != nil {
		return "", ""
	}

	switch {
	case cmd.Verb == protocol.VerbHello:
		r.mu.Lock()
		result := r.HelloResult
		r.mu.Unlock()
		if result != protocol.ResultOK {
			return fmt.Sprintf("HELLO REPLY RESULT=%s\n", result), ""
		}
		return "HELLO REPLY RESULT=OK VERSION=3.3\n", ""

	case cmd.Verb == protocol.VerbSession && cmd.Action == protocol.ActionCreate:
		return r.answerCreate(cmd)

	case cmd.Verb == protocol.VerbNaming && cmd.Action == protocol.ActionLookup:
		r.mu.Lock()
		dest := r.Destination
		r.mu.Unlock()
		if cmd.Get(protocol.KeyName) != protocol.NameMe {
			return fmt.Sprintf("NAMING REPLY RESULT=KEY_NOT_FOUND NAME=%s\n", cmd.Get(protocol.KeyName)), ""
		}
		return fmt.Sprintf("NAMING REPLY RESULT=OK NAME=ME VALUE=%s\n", dest), ""
	}
	return "", ""
}

func (r *Router) answerCreate(cmd *protocol.Reply) (string, string) {
	r.mu.Lock()
	r.creates++
	gate := r.Gate
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.RawCreateReply != "" {
		return r.RawCreateReply, ""
	}
	if r.CreateResult != protocol.ResultOK {
		if r.CreateMessage != "" {
			return fmt.Sprintf("SESSION STATUS RESULT=%s MESSAGE=%q\n", r.CreateResult, r.CreateMessage), ""
		}
		return fmt.Sprintf("SESSION STATUS RESULT=%s\n", r.CreateResult), ""
	}

	id := cmd.Get(protocol.KeyID)
	if r.active[id] {
		return "SESSION STATUS RESULT=DUPLICATED_ID\n", ""
	}
	r.active[id] = true

	key := cmd.Get(protocol.KeyDestination)
	if key == protocol.DestinationTransient {
		key = r.GeneratedKey
	}
	return fmt.Sprintf("SESSION STATUS RESULT=OK DESTINATION=%s\n", key), id
}
