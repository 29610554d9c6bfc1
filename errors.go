package asyncmc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ErDmKo/asyncmc/text"
)

var (
	// ErrConnectionDead matches every ConnectionDeadError with errors.Is.
	ErrConnectionDead = errors.New("asyncmc: connection dead")
	ErrPoolClosed     = errors.New("asyncmc: pool closed")
	ErrNoServers      = errors.New("asyncmc: no servers configured")
	ErrClientClosed   = errors.New("asyncmc: client closed")
)

type (
	ValidationError = text.ValidationError
	ProtocolError   = text.ProtocolError
)

// ConnectionDeadError is returned when a server could not be reached or the
// socket failed mid-exchange. The server stays quarantined for the dead-retry
// interval.
//
// For fan-out operations where every server failed, Causes holds one error
// per server and Server is empty.
type ConnectionDeadError struct {
	Server string
	Reason string
	Causes []*ConnectionDeadError
}

func (e *ConnectionDeadError) Error() string {
	if len(e.Causes) == 0 {
		return fmt.Sprintf("asyncmc: connection dead: %s: %s", e.Server, e.Reason)
	}

	parts := make([]string, len(e.Causes))
	for i, cause := range e.Causes {
		parts[i] = cause.Server + ": " + cause.Reason
	}
	return "asyncmc: all servers dead: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrConnectionDead) true for any ConnectionDeadError.
func (e *ConnectionDeadError) Is(target error) bool {
	return target == ErrConnectionDead
}

func newAggregateDeadError(causes []*ConnectionDeadError) *ConnectionDeadError {
	return &ConnectionDeadError{Reason: "no server succeeded", Causes: causes}
}

// IsConnectionDead reports whether err is or wraps a ConnectionDeadError.
func IsConnectionDead(err error) bool {
	return errors.Is(err, ErrConnectionDead)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	return text.IsValidationError(err)
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	return text.IsProtocolError(err)
}
