package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a precondition violated by the caller.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownDataset  = errors.New("unknown dataset")
)

// FetchError reports a failed page request. The whole paginated fetch is
// aborted; no partial result accompanies it.
type FetchError struct {
	Endpoint   string
	Offset     int
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s at offset %d: %s: %v", e.Endpoint, e.Offset, msg, e.Err)
	}
	return fmt.Sprintf("fetch %s at offset %d: %s", e.Endpoint, e.Offset, msg)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// InvalidArgument wraps ErrInvalidArgument with a formatted detail.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
