package rconkit

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures of the RCON server. None of them is fatal to
// the host; each degrades to a log line plus deny, skip or no-op.
type ErrorKind int

const (
	KindParse     ErrorKind = iota + 1 // malformed payload, message discarded
	KindAuth                           // wrong or empty secret
	KindPolicy                         // command rejected by the allow-list
	KindTransport                      // socket or listener failure
	KindResource                       // allow-list file or dump artifact unavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindAuth:
		return "auth"
	case KindPolicy:
		return "policy"
	case KindTransport:
		return "transport"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// RconError is the structured error returned by the RCON components.
type RconError struct {
	Kind      ErrorKind
	Op        string // operation that failed, e.g. "refresh" or "start"
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *RconError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RconError) Unwrap() error {
	return e.Cause
}

// NewRconError creates an RconError stamped with the current time.
func NewRconError(kind ErrorKind, op, message string, cause error) *RconError {
	return &RconError{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// IsKind reports whether err wraps an RconError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var rerr *RconError
	if errors.As(err, &rerr) {
		return rerr.Kind == kind
	}
	return false
}
