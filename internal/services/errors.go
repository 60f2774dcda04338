package services

import (
	"errors"
	"fmt"
)

// ErrSessionExpired covers every action whose session is gone or whose mode
// no longer matches; callers treat all causes identically.
var ErrSessionExpired = errors.New("session expired")

// InputError is a validation failure on user-entered text. It is data, not a
// fault: the flow re-prompts the same step.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExternalServiceError wraps a parser or persistence failure so the flow can
// surface a retry-eligible message without leaking transport details.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
