package llm

import (
	"context"
	"errors"
	"fmt"
)

// ServiceError represents a failed call to the external model service. It is
// transient: callers retry it within their retry budget before escalating.
type ServiceError struct {
	Op    string
	Model string
	Cause error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("model service error (%s, %s): %v", e.Op, e.Model, e.Cause)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Transient marks the error as retryable.
func (e *ServiceError) Transient() bool { return true }

// transienter is implemented by errors that declare themselves retryable.
type transienter interface {
	Transient() bool
}

// IsTransient reports whether err (or anything it wraps) declares itself
// transient. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}
