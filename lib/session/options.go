package session

import (
	"strconv"
)

// Default values for tunnel configuration.
const (
	// DefaultSignatureType is Ed25519.
	DefaultSignatureType = 7

	// DefaultTunnelQuantity is balanced for Java I2P (2) and i2pd (5).
	DefaultTunnelQuantity = 3

	// DefaultTunnelLength provides reasonable anonymity.
	DefaultTunnelLength = 3

	// MaxTunnelLength and MaxTunnelQuantity are the router limits.
	MaxTunnelLength   = 7
	MaxTunnelQuantity = 16
)

// TunnelConfig is a typed view of the common SESSION CREATE options.
// Options renders it into the map sent to the router.
type TunnelConfig struct {
	InboundLength          int
	OutboundLength         int
	InboundQuantity        int
	OutboundQuantity       int
	InboundBackupQuantity  int
	OutboundBackupQuantity int

	// SignatureType applies to TRANSIENT destinations only. Zero leaves
	// the router default.
	SignatureType int

	// FromPort and ToPort are the default ports for outbound streams.
	// Zero is omitted.
	FromPort int
	ToPort   int

	// ReduceIdleTime enables tunnel reduction when idle (seconds).
	// 0 means disabled.
	ReduceIdleTime int

	// ReduceIdleQuantity is the number of tunnels to keep when idle.
	ReduceIdleQuantity int

	// Extra holds i2cp.* and streaming.* options passed through verbatim.
	// Entries here override the typed fields.
	Extra map[string]string
}

// DefaultTunnelConfig returns a TunnelConfig with recommended defaults.
func DefaultTunnelConfig() *TunnelConfig {
	return &TunnelConfig{
		InboundLength:    DefaultTunnelLength,
		OutboundLength:   DefaultTunnelLength,
		InboundQuantity:  DefaultTunnelQuantity,
		OutboundQuantity: DefaultTunnelQuantity,
		SignatureType:    DefaultSignatureType,
		Extra:            make(map[string]string),
	}
}

// Validate checks every field against the router's accepted ranges.
func (c *TunnelConfig) Validate() error {
	for _, n := range []int{c.InboundLength, c.OutboundLength} {
		if n < 0 || n > MaxTunnelLength {
			return ErrInvalidTunnelConfig
		}
	}
	for _, n := range []int{c.InboundQuantity, c.OutboundQuantity, c.InboundBackupQuantity, c.OutboundBackupQuantity, c.ReduceIdleQuantity} {
		if n < 0 || n > MaxTunnelQuantity {
			return ErrInvalidTunnelConfig
		}
	}
	if c.ReduceIdleTime < 0 {
		return ErrInvalidTunnelConfig
	}
	if c.FromPort < 0 || c.FromPort > 65535 || c.ToPort < 0 || c.ToPort > 65535 {
		return ErrInvalidPort
	}
	// 0-11 are the defined signature types; 9 and 10 are reserved for
	// GOST and not accepted by current routers.
	if c.SignatureType < 0 || c.SignatureType > 11 || c.SignatureType == 9 || c.SignatureType == 10 {
		return ErrInvalidSignatureType
	}
	return nil
}

// WithTunnelLength sets both inbound and outbound tunnel lengths.
func (c *TunnelConfig) WithTunnelLength(length int) *TunnelConfig {
	c.InboundLength = length
	c.OutboundLength = length
	return c
}

// WithTunnelQuantity sets both inbound and outbound tunnel quantities.
func (c *TunnelConfig) WithTunnelQuantity(quantity int) *TunnelConfig {
	c.InboundQuantity = quantity
	c.OutboundQuantity = quantity
	return c
}

// WithSignatureType sets the signature type for generated destinations.
func (c *TunnelConfig) WithSignatureType(sigType int) *TunnelConfig {
	c.SignatureType = sigType
	return c
}

// WithPorts sets the default outbound ports.
func (c *TunnelConfig) WithPorts(from, to int) *TunnelConfig {
	c.FromPort = from
	c.ToPort = to
	return c
}

// WithOption sets a single passthrough option.
func (c *TunnelConfig) WithOption(key, value string) *TunnelConfig {
	if c.Extra == nil {
		c.Extra = make(map[string]string)
	}
	c.Extra[key] = value
	return c
}

// Options renders the configuration as SESSION CREATE options. The
// returned map is freshly allocated.
func (c *TunnelConfig) Options() map[string]string {
	opts := map[string]string{
		"inbound.length":    strconv.Itoa(c.InboundLength),
		"outbound.length":   strconv.Itoa(c.OutboundLength),
		"inbound.quantity":  strconv.Itoa(c.InboundQuantity),
		"outbound.quantity": strconv.Itoa(c.OutboundQuantity),
	}
	if c.InboundBackupQuantity > 0 {
		opts["inbound.backupQuantity"] = strconv.Itoa(c.InboundBackupQuantity)
	}
	if c.OutboundBackupQuantity > 0 {
		opts["outbound.backupQuantity"] = strconv.Itoa(c.OutboundBackupQuantity)
	}
	if c.SignatureType != 0 {
		opts["SIGNATURE_TYPE"] = strconv.Itoa(c.SignatureType)
	}
	if c.FromPort != 0 {
		opts["FROM_PORT"] = strconv.Itoa(c.FromPort)
	}
	if c.ToPort != 0 {
		opts["TO_PORT"] = strconv.Itoa(c.ToPort)
	}
	if c.ReduceIdleTime > 0 {
		opts["i2cp.reduceOnIdle"] = "true"
		opts["i2cp.reduceIdleTime"] = strconv.Itoa(c.ReduceIdleTime * 1000)
		if c.ReduceIdleQuantity > 0 {
			opts["i2cp.reduceQuantity"] = strconv.Itoa(c.ReduceIdleQuantity)
		}
	}
	for k, v := range c.Extra {
		opts[k] = v
	}
	return opts
}

// Clone creates a deep copy of the configuration.
func (c *TunnelConfig) Clone() *TunnelConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Extra != nil {
		clone.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}
