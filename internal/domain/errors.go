package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStateUnavailable  = errors.New("page state unavailable")
	ErrValidationFailed  = errors.New("page validation failed")
	ErrIdentifierMissing = errors.New("page identifier missing")
	ErrAutosaveDisabled  = errors.New("autosave disabled")
)

// TransportError is a failed request: the round trip itself failed or the
// server answered with a non-2xx status.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: http %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError is a navigate reply that could not be decoded or
// carried no redirect target.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed navigate response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ErrorKind returns a short stable name for err, used in events and metrics.
func ErrorKind(err error) string {
	var transport *TransportError
	var malformed *MalformedResponseError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStateUnavailable):
		return "state_unavailable"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrIdentifierMissing):
		return "identifier_missing"
	case errors.Is(err, ErrAutosaveDisabled):
		return "autosave_disabled"
	case errors.As(err, &malformed):
		return "malformed_response"
	case errors.As(err, &transport):
		return "transport_error"
	default:
		return "unknown"
	}
}
