package engine

import (
	"errors"
	"fmt"
)

// Session errors.
var (
	// ErrAlreadyRunning is returned by Run while a session is active.
	ErrAlreadyRunning = errors.New("engine: already running")

	// ErrNotRunning is returned by operations that need an active session.
	ErrNotRunning = errors.New("engine: not running")

	// ErrContextUnavailable means the surface or compute context could not
	// be acquired. No session state is kept.
	ErrContextUnavailable = errors.New("engine: rendering context unavailable")

	// ErrContextLost ends a session whose device went away mid-run.
	ErrContextLost = errors.New("engine: rendering context lost")

	// ErrInvalidConfig is returned before any tick runs.
	ErrInvalidConfig = errors.New("engine: invalid configuration")
)

// PassError carries the tick and pass of a session-fatal failure.
type PassError struct {
	Tick    int64
	Pass    string
	Wrapped error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("engine: tick %d: %s pass: %v", e.Tick, e.Pass, e.Wrapped)
}

func (e *PassError) Unwrap() error {
	return e.Wrapped
}
