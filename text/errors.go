package text

import (
	"errors"
	"fmt"
)

// ValidationError is returned when input is rejected before any byte is
// written to the network.
//
// Common causes:
//   - Empty key, key longer than 250 bytes
//   - Key containing space, control characters or bytes above 0x7e
//   - Negative expiration time
//   - Value that neither JSON nor gob can encode
//
// Connection handling: nothing was sent, the connection is untouched.
type ValidationError struct {
	Message string
	Value   any // offending input, if any
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("asyncmc: %s: %q", e.Message, fmt.Sprint(e.Value))
	}
	return "asyncmc: " + e.Message
}

// ProtocolError is returned when a server reply does not match the grammar
// expected for the command that was sent.
//
// Common causes:
//   - Unexpected reply token (ERROR, CLIENT_ERROR, SERVER_ERROR, garbage)
//   - Duplicate key or unrequested key in get results
//   - Malformed VALUE header or data block terminator
//   - Unknown value flags
//
// Connection handling: when Desync is true the reply was abandoned midway and
// the socket must not be reused. Otherwise the transport is healthy.
type ProtocolError struct {
	Message string
	Line    string // raw reply line, CRLF trimmed
	Desync  bool
	Err     error // underlying error, if any
}

func (e *ProtocolError) Error() string {
	msg := "asyncmc: protocol error: " + e.Message
	if e.Line != "" {
		msg += fmt.Sprintf(" (reply %q)", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

// ShouldCloseConnection reports whether the stream must be dropped after err.
//
// Returns false for nil, ValidationError and in-sync ProtocolError. Any other
// error, including I/O errors, leaves the stream in an unknown state.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}

	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr.Desync
	}

	return true
}

func protocolError(msg, line string) *ProtocolError {
	return &ProtocolError{Message: msg, Line: line}
}

func desyncError(msg, line string, err error) *ProtocolError {
	return &ProtocolError{Message: msg, Line: line, Desync: true, Err: err}
}
