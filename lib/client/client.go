// Package client opens SAM STREAM sessions: it dials the control endpoint,
// loads the persisted key, runs the handshake and persists a key the
// router generated.
//
// An Opener is what a session.Registry calls to establish a session it
// does not have yet.
package client

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-i2p/go-sam-session/lib/handshake"
	"github.com/go-i2p/go-sam-session/lib/keystore"
	"github.com/go-i2p/go-sam-session/lib/protocol"
	"github.com/go-i2p/go-sam-session/lib/session"
	"github.com/go-i2p/go-sam-session/lib/util"
)

// Config holds the handshake policy for every session an Opener creates.
type Config struct {
	// DialTimeout bounds connecting to the SAM port. Zero means no limit
	// beyond the caller's context.
	DialTimeout time.Duration

	// Timeouts bounds each waiting state of the handshake.
	Timeouts handshake.Timeouts

	// MinVersion and MaxVersion, when set, make the handshake open with
	// HELLO VERSION.
	MinVersion string
	MaxVersion string

	// MaxLineLength bounds a single reply line.
	MaxLineLength int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:   30 * time.Second,
		Timeouts:      handshake.DefaultTimeouts(),
		MaxLineLength: protocol.DefaultMaxLineLength,
	}
}

// Dialer opens control connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// DialContext calls f.
func (f DialFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// Option configures an Opener.
type Option func(*Opener)

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(o *Opener) { o.dialer = d }
}

// WithStore replaces the key store.
func WithStore(s keystore.Store) Option {
	return func(o *Opener) { o.store = s }
}

// WithLogger sets the logger for the opener and its handshakes.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Opener) {
		if log != nil {
			o.log = log
		}
	}
}

// Opener establishes sessions. It is safe for concurrent use.
type Opener struct {
	config *Config
	dialer Dialer
	store  keystore.Store
	runner *handshake.Runner
	log    logrus.FieldLogger
}

// Verify session.Opener interface compliance
var _ session.Opener = (*Opener)(nil)

// NewOpener creates an Opener. A nil config uses DefaultConfig.
func NewOpener(config *Config, opts ...Option) *Opener {
	if config == nil {
		config = DefaultConfig()
	}
	o := &Opener{
		config: config,
		dialer: &net.Dialer{KeepAlive: 30 * time.Second},
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = keystore.NewFileStore(o.log, keystore.DefaultCacheSize)
	}

	o.runner = handshake.NewRunner(config.Timeouts)
	o.runner.Log = o.log
	if config.MaxLineLength > 0 {
		o.runner.MaxLineLength = config.MaxLineLength
	}
	return o
}

// Open establishes the session key names. The returned session owns the
// control connection; on failure the connection is closed.
func (o *Opener) Open(ctx context.Context, key session.Key, opts session.CreateOptions) (*session.Session, error) {
	network, addr, err := SplitEndpoint(key.Endpoint)
	if err != nil {
		return nil, err
	}
	log := o.log.WithFields(logrus.Fields{
		"nickname": key.Nickname,
		"sam":      addr,
	})

	kp, err := o.store.Load(opts.KeyFile)
	if err != nil {
		return nil, err
	}

	req := handshake.Request{
		Nickname:   key.Nickname,
		Options:    opts.Options,
		PrivateKey: kp.PrivateKey,
		MinVersion: o.config.MinVersion,
		MaxVersion: o.config.MaxVersion,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	conn, err := o.dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	res, err := o.runner.Run(ctx, conn, req)
	if err != nil {
		// The router drops any half-created session with the connection.
		_ = conn.Close()
		return nil, err
	}

	if kp.NeedsPersist && res.Generated {
		if err := o.store.Save(opts.KeyFile, res.PrivateKey); err != nil {
			log.WithField("path", opts.KeyFile).WithError(err).Warn("Could not persist generated private key")
		}
	}

	return session.New(key.Endpoint, res.Nickname, res.Destination, res.PrivateKey, conn), nil
}

func (o *Opener) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	if o.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.DialTimeout)
		defer cancel()
	}
	conn, err := o.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, util.NewConnectionError(addr, "dial", err)
	}
	return conn, nil
}

// SplitEndpoint turns an endpoint descriptor, "tcp:host:port" or
// "host:port", into a network and address for dialing.
func SplitEndpoint(endpoint string) (network, addr string, err error) {
	addr = strings.TrimPrefix(endpoint, "tcp:")
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", "", util.NewValidationError("endpoint", "not host:port", err)
	}
	return "tcp", addr, nil
}
