package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError is a transport or authentication failure talking to a hosted
// model. StatusCode is zero when no HTTP response was received.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether repeating the call could succeed: network
// failures, rate limiting and server errors. Authentication and request
// errors are permanent.
func (e *ProviderError) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// IsTransient reports whether err is, or wraps, a transient ProviderError.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient()
}

// GenerationError means the model answered but the answer is not a usable
// script envelope. It is never retried.
type GenerationError struct {
	Raw string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// InterpretationError wraps any failure while summarizing output. Callers fall
// back to the raw output.
type InterpretationError struct {
	Err error
}

func (e *InterpretationError) Error() string {
	return fmt.Sprintf("interpret output: %v", e.Err)
}

func (e *InterpretationError) Unwrap() error { return e.Err }
