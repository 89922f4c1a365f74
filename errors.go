package contextpg

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/contextpg/storage"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the engine configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrSessionNotFound is returned when a session does not exist
	ErrSessionNotFound = storage.ErrSessionNotFound

	// ErrEmptyInput is returned when a turn carries no text
	ErrEmptyInput = errors.New("empty input")

	// ErrHookFailed is returned when a before-hook rejects an operation
	ErrHookFailed = errors.New("hook failed")
)

// EngineError represents an error with additional context
type EngineError struct {
	Op        string         // Operation that failed
	Err       error          // Underlying error
	SessionID string         // Session ID if applicable
	Context   map[string]any // Additional context
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewEngineError creates a new EngineError
func NewEngineError(op string, err error) *EngineError {
	return &EngineError{
		Op:  op,
		Err: err,
	}
}

// NewEngineErrorWithSession creates a new EngineError with session ID
func NewEngineErrorWithSession(op string, sessionID string, err error) *EngineError {
	return &EngineError{
		Op:        op,
		Err:       err,
		SessionID: sessionID,
	}
}
