package generation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned for requests arriving after Close.
	ErrClosed = errors.New("generation: orchestrator closed")

	// ErrQueueFull is returned when the request queue is at capacity.
	ErrQueueFull = errors.New("generation: request queue full")
)

// ValidationError reports a response that still lacked required
// elements after the retry attempt.
type ValidationError struct {
	Missing  []string
	Attempts int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("response missing required elements after %d attempts: %s",
		e.Attempts, strings.Join(e.Missing, ", "))
}

// BackendError reports a transport failure that survived the retry.
type BackendError struct {
	Err      error
	Attempts int
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
