// Package session holds established SAM STREAM sessions and the registry
// that shares them between streams.
//
// A Session owns the control connection its handshake ran on. The router
// keeps the session alive exactly as long as that connection stays open,
// so closing it is how a session is torn down.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-i2p/common/base32"
	"github.com/go-i2p/common/base64"
)

// Status represents the lifecycle state of a Session.
type Status int

const (
	// StatusActive indicates the session is registered and usable.
	StatusActive Status = iota
	// StatusClosed indicates the control connection has been closed.
	StatusClosed
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Key identifies a session in a Registry.
type Key struct {
	// Endpoint is the canonical control endpoint descriptor.
	Endpoint string
	// Nickname is the session ID registered with the router.
	Nickname string
}

// String returns "endpoint/nickname".
func (k Key) String() string {
	return k.Endpoint + "/" + k.Nickname
}

// Stream is a handle attached to a Session. Handles are compared with ==,
// so they must be comparable values such as pointers.
type Stream any

// Session is an established STREAM session.
//
// Identity fields are immutable after New. When both are needed, the
// Registry lock is taken before mu.
type Session struct {
	key         Key
	destination string
	privateKey  string
	conn        net.Conn
	createdAt   time.Time

	mu      sync.Mutex
	status  Status
	streams map[Stream]struct{}
}

// New creates a Session for an established handshake on conn.
func New(endpoint, nickname, destination, privateKey string, conn net.Conn) *Session {
	return &Session{
		key:         Key{Endpoint: endpoint, Nickname: nickname},
		destination: destination,
		privateKey:  privateKey,
		conn:        conn,
		createdAt:   time.Now(),
		status:      StatusActive,
		streams:     make(map[Stream]struct{}),
	}
}

// Key returns the registry key of the session.
func (s *Session) Key() Key { return s.key }

// Endpoint returns the control endpoint descriptor.
func (s *Session) Endpoint() string { return s.key.Endpoint }

// Nickname returns the session ID.
func (s *Session) Nickname() string { return s.key.Nickname }

// Destination returns the public destination in I2P Base64.
func (s *Session) Destination() string { return s.destination }

// PrivateKey returns the key blob the session was created with.
func (s *Session) PrivateKey() string { return s.privateKey }

// ControlConn returns the control connection. The session dies when it
// closes.
func (s *Session) ControlConn() net.Conn { return s.conn }

// CreatedAt returns when the session was established.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StreamCount returns how many streams are attached.
func (s *Session) StreamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// Base32 returns the session's .b32.i2p address.
func (s *Session) Base32() (string, error) {
	return Base32Address(s.destination)
}

// Base32Address computes the .b32.i2p address of an I2P Base64 destination.
func Base32Address(destination string) (string, error) {
	raw, err := base64.DecodeString(destination)
	if err != nil {
		return "", fmt.Errorf("decode destination: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("decode destination: empty")
	}
	sum := sha256.Sum256(raw)
	b32 := strings.ToLower(strings.TrimRight(base32.EncodeToString(sum[:]), "="))
	return b32 + ".b32.i2p", nil
}

// close marks the session closed and shuts the control connection.
// It is safe to call more than once.
func (s *Session) close() error {
	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusClosed
	s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
