package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-i2p/go-sam-session/lib/handshake"
	"github.com/go-i2p/go-sam-session/lib/util"
)

// ErrNotAttached is returned by Detach for a stream that is not attached.
var ErrNotAttached = errors.New("stream not attached to session")

// CreateOptions carries per-session creation parameters to the Opener.
type CreateOptions struct {
	// Options are the SAM session options sent with SESSION CREATE.
	Options map[string]string
	// KeyFile is the path of the persisted private key, or empty for a
	// transient destination.
	KeyFile string
}

// Opener establishes a new session: it dials the endpoint, runs the
// handshake and returns a Session built with New for the given key.
// On failure it must release everything it opened.
type Opener interface {
	Open(ctx context.Context, key Key, opts CreateOptions) (*Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, key Key, opts CreateOptions) (*Session, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, key Key, opts CreateOptions) (*Session, error) {
	return f(ctx, key, opts)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(log logrus.FieldLogger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics makes the registry report to m.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// call is the in-flight marker for one handshake. Waiters block on done;
// err and session are written before done is closed.
//
// An abandoned call has been cancelled by its last waiter or by Evict. It
// keeps the key until create returns, so no second handshake for the key
// starts while the first control connection may still be open.
type call struct {
	done      chan struct{}
	session   *Session
	err       error
	waiters   int
	cancel    context.CancelFunc
	abandoned bool
}

// entry holds either an established session or an in-flight call.
type entry struct {
	session *Session
	call    *call
}

// Registry maps (endpoint, nickname) to at most one live Session.
//
// The mapping is the only shared mutable state; every read and write of
// it, and of attached stream sets, happens under mu. Handshakes run
// outside the lock.
type Registry struct {
	opener  Opener
	log     logrus.FieldLogger
	metrics *Metrics

	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool
	wg      sync.WaitGroup
}

// NewRegistry creates an empty Registry that establishes sessions with
// opener.
func NewRegistry(opener Opener, opts ...RegistryOption) *Registry {
	r := &Registry{
		opener:  opener,
		log:     logrus.StandardLogger(),
		entries: make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session for (endpoint, nickname), establishing
// it if needed. An empty nickname selects the process default.
//
// Concurrent callers for the same key share one handshake and all receive
// the same Session or the same error. A caller whose ctx ends stops
// waiting; if it was the last waiter the handshake is aborted and its
// connection closed.
func (r *Registry) GetOrCreate(ctx context.Context, endpoint, nickname string, opts CreateOptions) (*Session, error) {
	if nickname == "" {
		nickname = handshake.DefaultNickname()
	}
	key := Key{Endpoint: endpoint, Nickname: nickname}

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, util.ErrRegistryClosed
		}
		if err := ctx.Err(); err != nil {
			r.mu.Unlock()
			return nil, err
		}

		c, s, stale := r.join(key, opts)
		r.mu.Unlock()
		if s != nil {
			return s, nil
		}

		if stale != nil {
			select {
			case <-stale.done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		select {
		case <-c.done:
			r.leave(key, c, false)
			return c.session, c.err
		case <-ctx.Done():
			r.leave(key, c, true)
			return nil, ctx.Err()
		}
	}
}

// join returns the established session for key, or the call to wait on,
// starting one if none is in flight. If an abandoned call still holds the
// key it is returned as stale and the caller must wait for it to finish
// before trying again. r.mu must be held.
func (r *Registry) join(key Key, opts CreateOptions) (c *call, s *Session, stale *call) {
	if e, ok := r.entries[key]; ok {
		if e.session != nil {
			return nil, e.session, nil
		}
		if e.call.abandoned {
			return nil, nil, e.call
		}
		e.call.waiters++
		r.gauge(func(m *Metrics) { m.Waiters.Inc() })
		return e.call, nil, nil
	}

	// The handshake must outlive any single caller, so its context is
	// detached and cancelled only when every waiter has left.
	hctx, cancel := context.WithCancel(context.Background())
	c = &call{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
	r.entries[key] = &entry{call: c}
	r.gauge(func(m *Metrics) {
		m.InFlight.Inc()
		m.Waiters.Inc()
	})

	r.wg.Add(1)
	go r.create(hctx, key, c, cloneOptions(opts))
	return c, nil, nil
}

// leave drops one waiter. An abandoning waiter that was the last one
// marks the call abandoned and cancels the handshake; the marker stays
// until create returns.
func (r *Registry) leave(key Key, c *call, abandon bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.waiters--
	r.gauge(func(m *Metrics) { m.Waiters.Dec() })
	if !abandon || c.waiters > 0 {
		return
	}
	if !c.abandoned {
		r.log.WithField("session", key.String()).Debug("Last waiter left, aborting handshake")
	}
	r.abandon(c)
}

// abandon cancels c and stops new callers from joining it. r.mu must be
// held.
func (r *Registry) abandon(c *call) {
	c.abandoned = true
	c.cancel()
}

// create runs one handshake and publishes its outcome. The result is
// installed only if the call still owns the key and was not abandoned;
// otherwise any session it produced is closed before the key is released.
func (r *Registry) create(ctx context.Context, key Key, c *call, opts CreateOptions) {
	defer r.wg.Done()
	defer c.cancel()

	log := r.log.WithField("session", key.String())
	start := time.Now()
	s, openErr := r.opener.Open(ctx, key, opts)
	switch {
	case openErr != nil:
	case s == nil:
		openErr = fmt.Errorf("session %s: opener returned no session", key)
	case s.Key() != key:
		openErr = fmt.Errorf("session %s: opener returned session for %s", key, s.Key())
		_ = s.close()
		s = nil
	}

	r.mu.Lock()
	e, ok := r.entries[key]
	owned := ok && e.call == c
	discard := !owned || c.abandoned

	err := openErr
	switch {
	case discard:
		if s != nil {
			_ = s.close()
			s = nil
		}
		err = util.ErrSessionClosed
		if r.closed {
			err = util.ErrRegistryClosed
		}
		if owned {
			delete(r.entries, key)
		}
	case err != nil:
		delete(r.entries, key)
	default:
		r.entries[key] = &entry{session: s}
	}
	c.session, c.err = s, err
	close(c.done)
	r.gauge(func(m *Metrics) {
		m.InFlight.Dec()
		m.Handshakes.WithLabelValues(outcome(openErr)).Inc()
		m.HandshakeDuration.Observe(time.Since(start).Seconds())
		if s != nil {
			m.ActiveSessions.Inc()
		}
	})
	r.mu.Unlock()

	switch {
	case discard:
		log.WithError(openErr).Debug("Discarded abandoned handshake")
	case err != nil:
		log.WithError(err).Warn("Session creation failed")
	default:
		log.WithFields(logrus.Fields{
			"destination": abbreviate(s.Destination()),
			"elapsed":     time.Since(start).Round(time.Millisecond),
		}).Info("Session established")
	}
}

// Attach registers stream against s. It fails with ErrSessionClosed if s
// has already been torn down.
func (r *Registry) Attach(s *Session, stream Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return util.ErrSessionClosed
	}
	if _, ok := s.streams[stream]; ok {
		return nil
	}
	s.streams[stream] = struct{}{}
	r.gauge(func(m *Metrics) { m.AttachedStreams.Inc() })
	return nil
}

// Detach removes stream from s. Removing the last stream closes the
// control connection and drops the registry entry before Detach returns,
// so a following GetOrCreate for the same key starts a fresh handshake.
func (r *Registry) Detach(s *Session, stream Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.mu.Lock()
	if _, ok := s.streams[stream]; !ok {
		s.mu.Unlock()
		return ErrNotAttached
	}
	delete(s.streams, stream)
	remaining := len(s.streams)
	s.mu.Unlock()
	r.gauge(func(m *Metrics) { m.AttachedStreams.Dec() })

	if remaining > 0 {
		return nil
	}
	r.teardown(s, ReasonDetached)
	return nil
}

// Acquire returns the session for (endpoint, nickname) with stream
// attached to it. If the session is torn down between lookup and attach,
// Acquire retries once with a fresh session.
func (r *Registry) Acquire(ctx context.Context, endpoint, nickname string, opts CreateOptions, stream Stream) (*Session, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var s *Session
		s, err = r.GetOrCreate(ctx, endpoint, nickname, opts)
		if err != nil {
			return nil, err
		}
		err = r.Attach(s, stream)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, util.ErrSessionClosed) {
			return nil, err
		}
	}
	return nil, err
}

// Get returns the established session for (endpoint, nickname), or nil.
// An empty nickname selects the process default.
func (r *Registry) Get(endpoint, nickname string) *Session {
	if nickname == "" {
		nickname = handshake.DefaultNickname()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[Key{Endpoint: endpoint, Nickname: nickname}]; ok {
		return e.session
	}
	return nil
}

// Count returns the number of established sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked()
}

// Pending returns the number of in-flight handshakes.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries) - r.countLocked()
}

func (r *Registry) countLocked() int {
	n := 0
	for _, e := range r.entries {
		if e.session != nil {
			n++
		}
	}
	return n
}

// Evict removes (endpoint, nickname) regardless of attached streams. An
// established session is closed; an in-flight handshake is cancelled and
// its waiters receive ErrSessionClosed once it has returned. Callers
// arriving meanwhile wait for it and then start afresh. Streams still
// attached to an evicted session are dropped without notice. It reports
// whether anything was removed.
func (r *Registry) Evict(endpoint, nickname string) bool {
	if nickname == "" {
		nickname = handshake.DefaultNickname()
	}
	key := Key{Endpoint: endpoint, Nickname: nickname}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return false
	}
	if e.session != nil {
		r.teardown(e.session, ReasonEvicted)
		return true
	}
	if e.call.abandoned {
		return false
	}
	r.abandon(e.call)
	r.log.WithField("session", key.String()).Debug("Evicted in-flight handshake")
	return true
}

// Close tears down every session, cancels every in-flight handshake and
// waits for the handshakes to return. Later calls to GetOrCreate fail with
// ErrRegistryClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	var errs []error
	for key, e := range r.entries {
		if e.session != nil {
			if err := r.closeSession(e.session, ReasonClosed); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		} else {
			e.call.cancel()
		}
	}
	r.entries = make(map[Key]*entry)
	r.mu.Unlock()

	r.wg.Wait()
	return errors.Join(errs...)
}

// teardown removes s from the mapping and closes its connection.
// r.mu must be held, so no GetOrCreate can observe the key between the
// two steps.
func (r *Registry) teardown(s *Session, reason string) {
	if e, ok := r.entries[s.key]; ok && e.session == s {
		delete(r.entries, s.key)
	}
	if err := r.closeSession(s, reason); err != nil {
		r.log.WithField("session", s.key.String()).WithError(err).Debug("Error closing control connection")
	}
}

// closeSession closes s and updates metrics. r.mu must be held.
func (r *Registry) closeSession(s *Session, reason string) error {
	s.mu.Lock()
	wasActive := s.status == StatusActive
	attached := len(s.streams)
	s.streams = make(map[Stream]struct{})
	s.mu.Unlock()
	if !wasActive {
		return nil
	}

	r.gauge(func(m *Metrics) {
		m.ActiveSessions.Dec()
		m.AttachedStreams.Sub(float64(attached))
		m.Teardowns.WithLabelValues(reason).Inc()
	})
	r.log.WithFields(logrus.Fields{
		"session": s.key.String(),
		"reason":  reason,
	}).Info("Session torn down")
	return s.close()
}

func (r *Registry) gauge(fn func(*Metrics)) {
	if r.metrics != nil {
		fn(r.metrics)
	}
}

func cloneOptions(opts CreateOptions) CreateOptions {
	out := CreateOptions{KeyFile: opts.KeyFile, Options: make(map[string]string, len(opts.Options))}
	for k, v := range opts.Options {
		out.Options[k] = v
	}
	return out
}

func abbreviate(dest string) string {
	if len(dest) <= 16 {
		return dest
	}
	return dest[:8] + "..." + dest[len(dest)-8:]
}
