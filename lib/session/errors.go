package session

import (
	"errors"
)

// Tunnel configuration validation errors.
var (
	// ErrInvalidPort indicates a port number is out of valid range (0-65535).
	ErrInvalidPort = errors.New("invalid port: must be 0-65535")

	// ErrInvalidTunnelConfig indicates a tunnel length or quantity is out
	// of the range routers accept.
	ErrInvalidTunnelConfig = errors.New("invalid tunnel configuration")

	// ErrInvalidSignatureType indicates an unknown signature type.
	ErrInvalidSignatureType = errors.New("invalid signature type")
)
