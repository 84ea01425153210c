package protocol

import (
	"sort"
	"strings"
)

// Command builds an outbound SAM command line.
// Per SAMv3.md, commands follow the format:
//
//	VERB ACTION [KEY=VALUE]...
//
// and are terminated by a newline character.
type Command struct {
	Verb    string
	Action  string
	Options []string // Pre-formatted KEY=VALUE pairs, in emission order
}

// NewCommand creates a new command builder with the given verb.
func NewCommand(verb string) *Command {
	return &Command{
		Verb:    verb,
		Options: make([]string, 0),
	}
}

// WithAction sets the command action (e.g., CREATE, LOOKUP).
func (c *Command) WithAction(action string) *Command {
	c.Action = action
	return c
}

// WithOption appends a key-value option.
// Values containing spaces, quotes, or backslashes are automatically quoted.
func (c *Command) WithOption(key, value string) *Command {
	c.Options = append(c.Options, formatOption(key, value))
	return c
}

// WithOptions appends every entry of opts sorted by key, so that the same
// mapping always produces the same line.
func (c *Command) WithOptions(opts map[string]string) *Command {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.WithOption(k, opts[k])
	}
	return c
}

// String formats the command as a SAM protocol line with newline terminator.
func (c *Command) String() string {
	parts := make([]string, 0, len(c.Options)+2)
	parts = append(parts, c.Verb)
	if c.Action != "" {
		parts = append(parts, c.Action)
	}
	parts = append(parts, c.Options...)
	return strings.Join(parts, " ") + "\n"
}

// Bytes returns the command as a byte slice for writing to connections.
func (c *Command) Bytes() []byte {
	return []byte(c.String())
}

// formatOption formats a key-value pair, quoting the value if necessary.
func formatOption(key, value string) string {
	if needsQuoting(value) {
		value = `"` + escapeValue(value) + `"`
	}
	return key + "=" + value
}

// needsQuoting returns true if the value contains characters that require quoting.
// Per SAM 3.2, values with spaces, tabs, quotes, or backslashes must be quoted.
func needsQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\"\\")
}

// escapeValue escapes quotes and backslashes in a string.
func escapeValue(s string) string {
	// Order matters: escape backslashes first, then quotes
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}

// HelloVersion creates a HELLO VERSION command for the given range.
// Empty bounds are omitted.
func HelloVersion(minVersion, maxVersion string) *Command {
	c := NewCommand(VerbHello).WithAction(ActionVersion)
	if minVersion != "" {
		c.WithOption(KeyMin, minVersion)
	}
	if maxVersion != "" {
		c.WithOption(KeyMax, maxVersion)
	}
	return c
}

// SessionCreate creates a SESSION CREATE command.
//
//	SESSION CREATE STYLE=<style> ID=<id> DESTINATION=<TRANSIENT|key> [K=V...]
//
// An empty privateKey requests a TRANSIENT destination.
func SessionCreate(style, id, privateKey string, options map[string]string) *Command {
	dest := privateKey
	if dest == "" {
		dest = DestinationTransient
	}
	return NewCommand(VerbSession).
		WithAction(ActionCreate).
		WithOption(KeyStyle, style).
		WithOption(KeyID, id).
		WithOption(KeyDestination, dest).
		WithOptions(options)
}

// NamingLookup creates a NAMING LOOKUP command for name.
// The reserved name ME resolves to the session's own destination.
func NamingLookup(name string) *Command {
	return NewCommand(VerbNaming).
		WithAction(ActionLookup).
		WithOption(KeyName, name)
}
