package endpoint

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-i2p/go-sam-session/lib/session"
)

// Params describes the session a stream endpoint needs.
type Params struct {
	// API selects the bridge API. Empty means SAM.
	API string
	// Endpoint is the control endpoint descriptor. Empty means
	// DefaultSAMEndpoint.
	Endpoint string
	// Nickname is the session ID. Empty selects the process default.
	Nickname string
	// Options are extra SESSION CREATE options.
	Options map[string]string
	// KeyFile persists the session key. Empty means a transient
	// destination.
	KeyFile string
}

// Manager leases sessions from a Registry to stream endpoints.
type Manager struct {
	registry *session.Registry
	log      logrus.FieldLogger
}

// NewManager creates a Manager over registry. A nil logger uses the
// logrus standard logger.
func NewManager(registry *session.Registry, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{registry: registry, log: log}
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *session.Registry { return m.registry }

// Lease is one stream's hold on a session. The session stays up while
// any lease on it is unreleased.
type Lease struct {
	session *session.Session
	stream  session.Stream
	manager *Manager
	once    sync.Once
	err     error
}

// Session returns the leased session.
func (l *Lease) Session() *session.Session { return l.session }

// Release detaches the stream. Releasing the last lease on a session tears
// it down. Release is idempotent.
func (l *Lease) Release() error {
	l.once.Do(func() {
		l.err = l.manager.Release(l.session, l.stream)
	})
	return l.err
}

// Acquire returns a lease on the session p describes, establishing the
// session if needed. The lease itself is the attached stream handle.
func (m *Manager) Acquire(ctx context.Context, p Params) (*Lease, error) {
	l := &Lease{manager: m}
	l.stream = l
	s, err := m.AcquireStream(ctx, p, l)
	if err != nil {
		return nil, err
	}
	l.session = s
	return l, nil
}

// AcquireStream attaches a caller-supplied stream handle to the session p
// describes. The caller must pass the same handle to Release.
func (m *Manager) AcquireStream(ctx context.Context, p Params, stream session.Stream) (*session.Session, error) {
	desc, err := ResolveAPI(p.API, p.Endpoint)
	if err != nil {
		return nil, err
	}

	s, err := m.registry.Acquire(ctx, desc.String(), p.Nickname, session.CreateOptions{
		Options: p.Options,
		KeyFile: p.KeyFile,
	}, stream)
	if err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"session": s.Key().String(),
		"streams": s.StreamCount(),
	}).Debug("Stream attached")
	return s, nil
}

// Release detaches stream from s.
func (m *Manager) Release(s *session.Session, stream session.Stream) error {
	if err := m.registry.Detach(s, stream); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"session": s.Key().String(),
		"streams": s.StreamCount(),
	}).Debug("Stream detached")
	return nil
}
