package handshake

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-i2p/go-sam-session/lib/protocol"
	"github.com/go-i2p/go-sam-session/lib/util"
)

// Timeouts bounds how long each waiting state may last.
// A zero duration means no deadline for that state.
type Timeouts struct {
	Hello  time.Duration
	Create time.Duration
	Lookup time.Duration
}

// DefaultTimeouts returns the timeouts used by the endpoint layer.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Hello:  30 * time.Second,
		Create: 60 * time.Second,
		Lookup: 30 * time.Second,
	}
}

// For returns the deadline budget for state.
func (t Timeouts) For(state State) time.Duration {
	switch state {
	case StateAwaitingHello:
		return t.Hello
	case StateAwaitingCreateResult:
		return t.Create
	case StateAwaitingDestination:
		return t.Lookup
	default:
		return 0
	}
}

// Runner performs handshakes over control connections.
type Runner struct {
	Timeouts      Timeouts
	MaxLineLength int
	Log           logrus.FieldLogger
}

// NewRunner creates a Runner with the given timeouts, logging to the
// logrus standard logger.
func NewRunner(timeouts Timeouts) *Runner {
	return &Runner{
		Timeouts:      timeouts,
		MaxLineLength: protocol.DefaultMaxLineLength,
		Log:           logrus.StandardLogger(),
	}
}

// Run performs one handshake on conn, which must be freshly connected and
// is dedicated to this attempt. Run does not close conn; on failure the
// caller must, since the router may hold a half-created session on it.
//
// Cancelling ctx aborts any blocked read or write.
func (r *Runner) Run(ctx context.Context, conn net.Conn, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	addr := remoteAddr(conn)

	m := NewMachine(req)
	log = log.WithFields(logrus.Fields{
		"nickname": m.Nickname(),
		"sam":      addr,
	})

	done := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()
	defer func() {
		close(done)
		<-watcher
		_ = conn.SetDeadline(time.Time{})
	}()

	reader := protocol.NewLineReader(conn, r.MaxLineLength)
	cmd := m.Start()

	for !m.State().Terminal() {
		if err := r.armDeadline(ctx, conn, m.State()); err != nil {
			m.Fail(util.NewConnectionError(addr, "handshake", err))
			break
		}

		if cmd != nil {
			if _, err := conn.Write(cmd.Bytes()); err != nil {
				m.Fail(r.ioFailure(ctx, addr, m, "write", err))
				break
			}
			log.WithFields(logrus.Fields{
				"state": m.State(),
				"verb":  cmd.Verb + " " + cmd.Action,
			}).Debug("Sent handshake command")
		}

		tok, err := reader.ReadToken()
		if err != nil {
			m.Fail(r.ioFailure(ctx, addr, m, "read", err))
			break
		}

		from := m.State()
		cmd = m.Handle(tok)
		log.WithFields(logrus.Fields{
			"from":   from,
			"to":     m.State(),
			"result": tok.ResultCode(),
		}).Debug("Handshake transition")
	}

	if res, ok := m.Result(); ok {
		return res, nil
	}
	return nil, m.Err()
}

// armDeadline applies the per-state budget. A deadline set by ctx
// cancellation must not be overwritten, hence the ctx check afterwards.
func (r *Runner) armDeadline(ctx context.Context, conn net.Conn, state State) error {
	var deadline time.Time
	if d := r.Timeouts.For(state); d > 0 {
		deadline = time.Now().Add(d)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	return ctx.Err()
}

// ioFailure classifies a read/write error into the error taxonomy.
func (r *Runner) ioFailure(ctx context.Context, addr string, m *Machine, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return util.NewConnectionError(addr, op, ctxErr)
	}

	var synErr *util.ProtocolSyntaxError
	if errors.As(err, &synErr) {
		return err
	}
	if errors.Is(err, protocol.ErrLineTooLong) {
		return util.NewProtocolSyntaxError("", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return util.NewSessionCreationError(m.Nickname(), m.State().String(), protocol.ResultTimeout,
			"no reply within "+r.Timeouts.For(m.State()).String())
	}

	return util.NewConnectionError(addr, op, err)
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
