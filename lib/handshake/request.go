package handshake

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/go-i2p/go-sam-session/lib/protocol"
	"github.com/go-i2p/go-sam-session/lib/util"
)

// Request describes one session creation attempt. It is used for a single
// handshake and not retained afterwards.
type Request struct {
	// Nickname is the session ID. Empty selects DefaultNickname().
	Nickname string

	// Options are extra SESSION CREATE options (tunnel lengths, etc.).
	// They are emitted sorted by key.
	Options map[string]string

	// PrivateKey is a previously persisted key blob. Empty requests a
	// TRANSIENT destination.
	PrivateKey string

	// MinVersion and MaxVersion, when either is set, make the handshake
	// open with HELLO VERSION.
	MinVersion string
	MaxVersion string
}

var (
	defaultNicknameOnce sync.Once
	defaultNickname     string
)

// DefaultNickname returns the nickname used when a request leaves it empty.
// It is fixed for the lifetime of the process, so every session a process
// opens without a nickname shares it, and it is random so that separate
// processes never collide on the router.
func DefaultNickname() string {
	defaultNicknameOnce.Do(func() {
		id := strings.ReplaceAll(uuid.New().String(), "-", "")
		defaultNickname = fmt.Sprintf("samsession-%d-%s", os.Getpid(), id[:12])
	})
	return defaultNickname
}

// EffectiveNickname returns the nickname the handshake will use.
func (r *Request) EffectiveNickname() string {
	if r.Nickname != "" {
		return r.Nickname
	}
	return DefaultNickname()
}

// Negotiates reports whether the handshake starts with HELLO VERSION.
func (r *Request) Negotiates() bool {
	return r.MinVersion != "" || r.MaxVersion != ""
}

// Validate checks the request for problems that must be caught before any
// network I/O. Failures are *util.ValidationError.
func (r *Request) Validate() error {
	if err := protocol.ValidateSessionID(r.EffectiveNickname()); err != nil {
		return util.NewValidationError("nickname", "not usable as a session ID", err)
	}
	for k, v := range r.Options {
		if err := protocol.ValidateOption(k, v); err != nil {
			return util.NewValidationError("options", "cannot be sent", err)
		}
	}
	if strings.ContainsAny(r.PrivateKey, " \t\r\n") {
		return util.NewValidationError("private key", "contains whitespace", nil)
	}
	for _, v := range []string{r.MinVersion, r.MaxVersion} {
		if v == "" {
			continue
		}
		if err := protocol.ValidateVersion(v); err != nil {
			return util.NewValidationError("version", "malformed", err)
		}
	}
	if r.MinVersion != "" && r.MaxVersion != "" {
		if cmp, _ := protocol.CompareVersions(r.MinVersion, r.MaxVersion); cmp > 0 {
			return util.NewValidationError("version", fmt.Sprintf("min %s above max %s", r.MinVersion, r.MaxVersion), nil)
		}
	}
	return nil
}

// clone copies the request so later mutation of the caller's options map
// cannot leak into a handshake in progress.
func (r Request) clone() Request {
	opts := make(map[string]string, len(r.Options))
	for k, v := range r.Options {
		opts[k] = v
	}
	r.Options = opts
	r.Nickname = r.EffectiveNickname()
	return r
}
