// Package config holds the settings of the sam-session command: where the
// SAM bridge is, which session to create and how patiently to wait for it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/go-i2p/go-sam-session/lib/client"
	"github.com/go-i2p/go-sam-session/lib/endpoint"
	"github.com/go-i2p/go-sam-session/lib/handshake"
	"github.com/go-i2p/go-sam-session/lib/keystore"
	"github.com/go-i2p/go-sam-session/lib/protocol"
	"github.com/go-i2p/go-sam-session/lib/session"
)

// Environment variables read by ApplyEnv.
const (
	EnvSAMAddr = "SAM_ADDR"
	EnvDebug   = "SAM_DEBUG"
)

// Config holds everything needed to create one session.
type Config struct {
	// API is the bridge API; only SAM is supported.
	API string

	// SAMAddr is the control endpoint descriptor ("tcp:host:port" or
	// "host:port"). Empty means the default endpoint.
	SAMAddr string

	// Nickname is the session ID. Empty selects a per-process default.
	Nickname string

	// KeyFile persists the session key. Empty means transient.
	KeyFile string

	// StrictKeyFile fails instead of falling back to a transient key when
	// KeyFile exists but cannot be read.
	StrictKeyFile bool

	// KeyCacheSize bounds the in-memory cache of loaded keys.
	KeyCacheSize int

	// MinVersion and MaxVersion enable HELLO VERSION negotiation.
	MinVersion string
	MaxVersion string

	// DialTimeout bounds connecting to the bridge.
	DialTimeout time.Duration

	// Timeouts bounds each handshake state.
	Timeouts handshake.Timeouts

	// Tunnels holds typed tunnel options. Nil sends none and leaves the
	// router defaults.
	Tunnels *session.TunnelConfig

	// Options are extra SESSION CREATE options; they override Tunnels.
	Options map[string]string

	// MetricsAddr, if set, serves prometheus metrics on this address.
	MetricsAddr string

	// Debug enables debug logging.
	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API:          endpoint.APISAM,
		SAMAddr:      endpoint.DefaultSAMEndpoint.String(),
		KeyCacheSize: keystore.DefaultCacheSize,
		DialTimeout:  30 * time.Second,
		Timeouts:     handshake.DefaultTimeouts(),
		Options:      make(map[string]string),
	}
}

// Validate checks the configuration and returns a *ConfigError describing
// the first problem found.
func (c *Config) Validate() error {
	if _, err := endpoint.ResolveAPI(c.API, c.SAMAddr); err != nil {
		return &ConfigError{Field: "SAMAddr", Message: err.Error()}
	}
	if c.Nickname != "" {
		if err := protocol.ValidateSessionID(c.Nickname); err != nil {
			return &ConfigError{Field: "Nickname", Message: err.Error()}
		}
	}
	if c.KeyCacheSize < 0 {
		return &ConfigError{Field: "KeyCacheSize", Message: "cannot be negative"}
	}
	if c.DialTimeout < 0 {
		return &ConfigError{Field: "DialTimeout", Message: "cannot be negative"}
	}
	if c.Timeouts.Hello < 0 {
		return &ConfigError{Field: "Timeouts.Hello", Message: "cannot be negative"}
	}
	if c.Timeouts.Create < 0 {
		return &ConfigError{Field: "Timeouts.Create", Message: "cannot be negative"}
	}
	if c.Timeouts.Lookup < 0 {
		return &ConfigError{Field: "Timeouts.Lookup", Message: "cannot be negative"}
	}
	if c.MinVersion != "" {
		if err := protocol.ValidateVersion(c.MinVersion); err != nil {
			return &ConfigError{Field: "MinVersion", Message: err.Error()}
		}
	}
	if c.MaxVersion != "" {
		if err := protocol.ValidateVersion(c.MaxVersion); err != nil {
			return &ConfigError{Field: "MaxVersion", Message: err.Error()}
		}
	}
	if c.MinVersion != "" && c.MaxVersion != "" {
		if cmp, _ := protocol.CompareVersions(c.MinVersion, c.MaxVersion); cmp > 0 {
			return &ConfigError{Field: "MinVersion", Message: "above MaxVersion"}
		}
	}
	if c.Tunnels != nil {
		if err := c.Tunnels.Validate(); err != nil {
			return &ConfigError{Field: "Tunnels", Message: err.Error()}
		}
	}
	for k, v := range c.Options {
		if err := protocol.ValidateOption(k, v); err != nil {
			return &ConfigError{Field: "Options." + k, Message: err.Error()}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Tunnels = c.Tunnels.Clone()
	out.Options = make(map[string]string, len(c.Options))
	for k, v := range c.Options {
		out.Options[k] = v
	}
	return &out
}

// WithSAMAddr returns a copy with the control endpoint set.
func (c *Config) WithSAMAddr(addr string) *Config {
	out := c.Clone()
	out.SAMAddr = addr
	return out
}

// WithNickname returns a copy with the session ID set.
func (c *Config) WithNickname(nickname string) *Config {
	out := c.Clone()
	out.Nickname = nickname
	return out
}

// WithKeyFile returns a copy with the key file set.
func (c *Config) WithKeyFile(path string) *Config {
	out := c.Clone()
	out.KeyFile = path
	return out
}

// WithOption returns a copy with one extra SESSION CREATE option.
func (c *Config) WithOption(key, value string) *Config {
	out := c.Clone()
	out.Options[key] = value
	return out
}

// WithTunnels returns a copy with the tunnel options set.
func (c *Config) WithTunnels(t *session.TunnelConfig) *Config {
	out := c.Clone()
	out.Tunnels = t.Clone()
	return out
}

// SessionOptions merges Tunnels and Options into the SESSION CREATE
// option map.
func (c *Config) SessionOptions() map[string]string {
	opts := make(map[string]string)
	if c.Tunnels != nil {
		opts = c.Tunnels.Options()
	}
	for k, v := range c.Options {
		opts[k] = v
	}
	return opts
}

// ClientConfig returns the handshake policy for client.NewOpener.
func (c *Config) ClientConfig() *client.Config {
	cc := client.DefaultConfig()
	cc.DialTimeout = c.DialTimeout
	cc.Timeouts = c.Timeouts
	cc.MinVersion = c.MinVersion
	cc.MaxVersion = c.MaxVersion
	return cc
}

// Params returns the endpoint parameters for the configured session.
func (c *Config) Params() endpoint.Params {
	return endpoint.Params{
		API:      c.API,
		Endpoint: c.SAMAddr,
		Nickname: c.Nickname,
		Options:  c.SessionOptions(),
		KeyFile:  c.KeyFile,
	}
}

// ApplyEnv overrides fields from the environment. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvSAMAddr)); v != "" {
		c.SAMAddr = v
	}
	if v := strings.TrimSpace(getenv(EnvDebug)); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Field: EnvDebug, Message: "must be a boolean"}
		}
		c.Debug = debug
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Message
}

// fileConfig maps sam-session.toml keys onto Config.
type fileConfig struct {
	API           string            `toml:"api"`
	SAM           string            `toml:"sam"`
	Nickname      string            `toml:"nickname"`
	KeyFile       string            `toml:"keyfile"`
	StrictKeyFile bool              `toml:"strict_keyfile"`
	KeyCacheSize  int               `toml:"key_cache_size"`
	MinVersion    string            `toml:"min_version"`
	MaxVersion    string            `toml:"max_version"`
	DialTimeout   string            `toml:"dial_timeout"`
	MetricsAddr   string            `toml:"metrics_addr"`
	Debug         bool              `toml:"debug"`
	Timeouts      fileTimeouts      `toml:"timeouts"`
	Tunnels       fileTunnels       `toml:"tunnels"`
	Options       map[string]string `toml:"options"`
}

type fileTimeouts struct {
	Hello  string `toml:"hello"`
	Create string `toml:"create"`
	Lookup string `toml:"lookup"`
}

type fileTunnels struct {
	InboundLength          int `toml:"inbound_length"`
	OutboundLength         int `toml:"outbound_length"`
	InboundQuantity        int `toml:"inbound_quantity"`
	OutboundQuantity       int `toml:"outbound_quantity"`
	InboundBackupQuantity  int `toml:"inbound_backup_quantity"`
	OutboundBackupQuantity int `toml:"outbound_backup_quantity"`
	SignatureType          int `toml:"signature_type"`
	ReduceIdleTime         int `toml:"reduce_idle_time"`
	ReduceIdleQuantity     int `toml:"reduce_idle_quantity"`
}

// Load reads a TOML file and overlays the keys it defines onto
// DefaultConfig. The result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for an in-memory document.
func Parse(doc string) (*Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("api") {
		cfg.API = strings.TrimSpace(raw.API)
	}
	if meta.IsDefined("sam") {
		cfg.SAMAddr = strings.TrimSpace(raw.SAM)
	}
	if meta.IsDefined("nickname") {
		cfg.Nickname = strings.TrimSpace(raw.Nickname)
	}
	if meta.IsDefined("keyfile") {
		cfg.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("strict_keyfile") {
		cfg.StrictKeyFile = raw.StrictKeyFile
	}
	if meta.IsDefined("key_cache_size") {
		cfg.KeyCacheSize = raw.KeyCacheSize
	}
	if meta.IsDefined("min_version") {
		cfg.MinVersion = strings.TrimSpace(raw.MinVersion)
	}
	if meta.IsDefined("max_version") {
		cfg.MaxVersion = strings.TrimSpace(raw.MaxVersion)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}

	durations := []struct {
		key  []string
		raw  string
		dest *time.Duration
	}{
		{[]string{"dial_timeout"}, raw.DialTimeout, &cfg.DialTimeout},
		{[]string{"timeouts", "hello"}, raw.Timeouts.Hello, &cfg.Timeouts.Hello},
		{[]string{"timeouts", "create"}, raw.Timeouts.Create, &cfg.Timeouts.Create},
		{[]string{"timeouts", "lookup"}, raw.Timeouts.Lookup, &cfg.Timeouts.Lookup},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(d.key, "."), err)
		}
		*d.dest = v
	}

	if meta.IsDefined("tunnels") {
		t := session.DefaultTunnelConfig()
		ints := []struct {
			key  string
			raw  int
			dest *int
		}{
			{"inbound_length", raw.Tunnels.InboundLength, &t.InboundLength},
			{"outbound_length", raw.Tunnels.OutboundLength, &t.OutboundLength},
			{"inbound_quantity", raw.Tunnels.InboundQuantity, &t.InboundQuantity},
			{"outbound_quantity", raw.Tunnels.OutboundQuantity, &t.OutboundQuantity},
			{"inbound_backup_quantity", raw.Tunnels.InboundBackupQuantity, &t.InboundBackupQuantity},
			{"outbound_backup_quantity", raw.Tunnels.OutboundBackupQuantity, &t.OutboundBackupQuantity},
			{"signature_type", raw.Tunnels.SignatureType, &t.SignatureType},
			{"reduce_idle_time", raw.Tunnels.ReduceIdleTime, &t.ReduceIdleTime},
			{"reduce_idle_quantity", raw.Tunnels.ReduceIdleQuantity, &t.ReduceIdleQuantity},
		}
		for _, f := range ints {
			if meta.IsDefined("tunnels", f.key) {
				*f.dest = f.raw
			}
		}
		cfg.Tunnels = t
	}

	for k, v := range raw.Options {
		cfg.Options[k] = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
