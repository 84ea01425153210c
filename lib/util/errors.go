// Package util provides the error taxonomy shared by the session engine.
package util

import (
	"errors"
	"fmt"
)

// Sentinel errors for SAM RESULT codes per SAMv3.md specification.
var (
	// ErrDuplicateID maps to RESULT=DUPLICATED_ID.
	ErrDuplicateID = errors.New("duplicated session ID")

	// ErrDuplicateDest maps to RESULT=DUPLICATED_DEST.
	ErrDuplicateDest = errors.New("duplicated destination")

	// ErrInvalidID maps to RESULT=INVALID_ID.
	ErrInvalidID = errors.New("invalid session ID")

	// ErrInvalidKey maps to RESULT=INVALID_KEY.
	ErrInvalidKey = errors.New("invalid key")

	// ErrKeyNotFound maps to RESULT=KEY_NOT_FOUND.
	ErrKeyNotFound = errors.New("key not found")

	// ErrI2PError maps to RESULT=I2P_ERROR.
	ErrI2PError = errors.New("router error")

	// ErrTimeout maps to RESULT=TIMEOUT, and is also used when a
	// caller-supplied handshake deadline expires.
	ErrTimeout = errors.New("timeout")

	// ErrNoVersion maps to RESULT=NOVERSION.
	ErrNoVersion = errors.New("no compatible version")

	// ErrProtocolSyntax marks every *ProtocolSyntaxError.
	ErrProtocolSyntax = errors.New("protocol syntax error")

	// ErrValidation marks every *ValidationError.
	ErrValidation = errors.New("invalid request")

	// ErrConnection marks every *ConnectionError.
	ErrConnection = errors.New("connection error")

	// ErrSessionClosed indicates the session has been torn down.
	ErrSessionClosed = errors.New("session closed")

	// ErrRegistryClosed indicates the registry no longer accepts requests.
	ErrRegistryClosed = errors.New("registry closed")
)

var resultErrors = map[string]error{
	"DUPLICATED_ID":   ErrDuplicateID,
	"DUPLICATED_DEST": ErrDuplicateDest,
	"INVALID_ID":      ErrInvalidID,
	"INVALID_KEY":     ErrInvalidKey,
	"KEY_NOT_FOUND":   ErrKeyNotFound,
	"I2P_ERROR":       ErrI2PError,
	"TIMEOUT":         ErrTimeout,
	"NOVERSION":       ErrNoVersion,
}

// ResultToError converts a SAM RESULT code to its sentinel error.
// Returns nil for "OK" and ErrI2PError for unknown codes.
func ResultToError(result string) error {
	if result == "OK" {
		return nil
	}
	if err, ok := resultErrors[result]; ok {
		return err
	}
	return ErrI2PError
}

// ValidationError reports a malformed session request. It is returned
// before any network I/O takes place.
type ValidationError struct {
	Field   string
	Message string
	Err     error // optional cause
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ProtocolSyntaxError reports an inbound line that does not match the
// reply grammar. It terminates the handshake in progress.
type ProtocolSyntaxError struct {
	Line string // The offending line, without terminator
	Err  error  // What was wrong with it
}

// NewProtocolSyntaxError creates a ProtocolSyntaxError for line.
func NewProtocolSyntaxError(line string, err error) *ProtocolSyntaxError {
	return &ProtocolSyntaxError{Line: line, Err: err}
}

// Error implements the error interface.
func (e *ProtocolSyntaxError) Error() string {
	return fmt.Sprintf("malformed reply %q: %v", e.Line, e.Err)
}

// Is makes every ProtocolSyntaxError match ErrProtocolSyntax.
func (e *ProtocolSyntaxError) Is(target error) bool {
	return target == ErrProtocolSyntax
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *ProtocolSyntaxError) Unwrap() error {
	return e.Err
}

// SessionCreationError reports a non-OK result from the router during the
// handshake. It is terminal and never retried by the engine.
type SessionCreationError struct {
	Nickname string // The session ID being created
	Stage    string // The command that failed (e.g., "SESSION CREATE")
	Result   string // The RESULT= code
	Message  string // The MESSAGE= text, if any
}

// NewSessionCreationError creates a SessionCreationError.
func NewSessionCreationError(nickname, stage, result, message string) *SessionCreationError {
	return &SessionCreationError{
		Nickname: nickname,
		Stage:    stage,
		Result:   result,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *SessionCreationError) Error() string {
	msg := fmt.Sprintf("session %s: %s: %s", e.Nickname, e.Stage, e.Result)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap returns the sentinel for the result code.
func (e *SessionCreationError) Unwrap() error {
	return ResultToError(e.Result)
}

// ConnectionError wraps a transport failure with connection context.
type ConnectionError struct {
	Addr      string // Control endpoint address
	Operation string // The operation being performed
	Err       error  // The underlying error
}

// NewConnectionError creates a new ConnectionError with context.
func NewConnectionError(addr, operation string, err error) *ConnectionError {
	return &ConnectionError{
		Addr:      addr,
		Operation: operation,
		Err:       err,
	}
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Addr, e.Operation, e.Err)
}

// Is makes every ConnectionError match ErrConnection.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PersistenceWarning describes a key file that could not be read or
// written. It is logged, never returned from a session request.
type PersistenceWarning struct {
	Path      string
	Operation string // "load" or "save"
	Err       error
}

// NewPersistenceWarning creates a PersistenceWarning.
func NewPersistenceWarning(path, operation string, err error) *PersistenceWarning {
	return &PersistenceWarning{Path: path, Operation: operation, Err: err}
}

// Error implements the error interface.
func (e *PersistenceWarning) Error() string {
	return fmt.Sprintf("keyfile %s: %s: %v", e.Path, e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *PersistenceWarning) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error represents a condition that may
// succeed if the caller tries again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrI2PError)
}

// IsPermanent returns true if the error will not succeed on retry without
// changing the request.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrDuplicateDest) ||
		errors.Is(err, ErrNoVersion)
}
