package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/mod/semver"
)

// Validation errors
var (
	ErrEmptySessionID    = errors.New("session ID cannot be empty")
	ErrInvalidSessionID  = errors.New("session ID contains invalid characters")
	ErrInvalidOptionKey  = errors.New("invalid option key")
	ErrReservedOptionKey = errors.New("option key is set by the handshake")
	ErrInvalidOptionVal  = errors.New("option value contains a line break")
	ErrInvalidVersion    = errors.New("invalid SAM version")
)

// ValidateSessionID validates a SAM session ID (nickname).
// Session IDs cannot be empty and cannot contain whitespace.
func ValidateSessionID(id string) error {
	if id == "" {
		return ErrEmptySessionID
	}

	for _, r := range id {
		if unicode.IsSpace(r) || r == '=' || r == '"' {
			return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
		}
	}

	return nil
}

// ValidateOption validates a caller-supplied SESSION CREATE option.
// Keys must be non-empty, free of whitespace, '=' and quotes, and must not
// collide with STYLE, ID or DESTINATION. Values may contain spaces (they are
// quoted on the wire) but never line breaks.
func ValidateOption(key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidOptionKey)
	}
	if strings.ContainsAny(key, " \t\r\n=\"\\") {
		return fmt.Errorf("%w: %q", ErrInvalidOptionKey, key)
	}
	if ReservedOptionKeys[strings.ToUpper(key)] {
		return fmt.Errorf("%w: %s", ErrReservedOptionKey, key)
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("%w: %s", ErrInvalidOptionVal, key)
	}
	return nil
}

// ValidateVersion checks that v is a SAM version such as "3.1".
func ValidateVersion(v string) error {
	if strings.ContainsAny(v, "-+") || !semver.IsValid("v"+v) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return nil
}

// CompareVersions compares SAM versions component by component, so "3.10"
// is above "3.3". The result is -1, 0 or +1.
func CompareVersions(a, b string) (int, error) {
	if err := ValidateVersion(a); err != nil {
		return 0, err
	}
	if err := ValidateVersion(b); err != nil {
		return 0, err
	}
	return semver.Compare("v"+a, "v"+b), nil
}
