// Package endpoint is the surface stream endpoints use to obtain a shared
// SAM session: it resolves control endpoint descriptors and leases
// sessions from a session.Registry.
package endpoint

import (
	"net"
	"strconv"
	"strings"

	"github.com/go-i2p/go-sam-session/lib/protocol"
	"github.com/go-i2p/go-sam-session/lib/util"
)

// Supported bridge APIs. Only SAM is implemented.
const (
	APISAM = "SAM"
	APIBOB = "BOB"
)

// DefaultSAMEndpoint is used when no control endpoint is given.
var DefaultSAMEndpoint = Descriptor{Host: protocol.DefaultSAMHost, Port: protocol.DefaultSAMPort}

// Descriptor names a control endpoint. It is always TCP.
type Descriptor struct {
	Host string
	Port int
}

// ParseDescriptor parses "tcp:host:port" or "host:port". Colons escaped
// as "\:" are accepted, so descriptors can be embedded in colon-separated
// endpoint strings. An empty string yields DefaultSAMEndpoint.
func ParseDescriptor(s string) (Descriptor, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, `\:`, ":"))
	if s == "" {
		return DefaultSAMEndpoint, nil
	}

	if scheme, rest, ok := strings.Cut(s, ":"); ok && !strings.HasPrefix(s, "[") && strings.Contains(rest, ":") {
		if !strings.EqualFold(scheme, "tcp") {
			return Descriptor{}, util.NewValidationError("endpoint", "unsupported scheme "+strconv.Quote(scheme), nil)
		}
		s = rest
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Descriptor{}, util.NewValidationError("endpoint", "not host:port", err)
	}
	if host == "" {
		return Descriptor{}, util.NewValidationError("endpoint", "missing host", nil)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Descriptor{}, util.NewValidationError("endpoint", "port must be 1-65535", err)
	}
	return Descriptor{Host: host, Port: port}, nil
}

// Address returns "host:port" for dialing.
func (d Descriptor) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// String returns the canonical "tcp:host:port" form used as a registry
// key, so equivalent spellings share sessions.
func (d Descriptor) String() string {
	return "tcp:" + d.Address()
}

// ResolveAPI applies the bridge API defaults: an empty api means SAM, but
// only when no explicit endpoint was given, and anything other than SAM
// is rejected.
func ResolveAPI(api, apiEndpoint string) (Descriptor, error) {
	if api == "" {
		if apiEndpoint != "" {
			return Descriptor{}, util.NewValidationError("api", "must be specified if an endpoint is given", nil)
		}
		api = APISAM
	}
	switch strings.ToUpper(api) {
	case APISAM:
		return ParseDescriptor(apiEndpoint)
	case APIBOB:
		return Descriptor{}, util.NewValidationError("api", "BOB is not supported", nil)
	default:
		return Descriptor{}, util.NewValidationError("api", "invalid or unsupported: "+strconv.Quote(api), nil)
	}
}
