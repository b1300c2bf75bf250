package retrieval

import (
	"fmt"
	"time"
)

// TimeoutError indicates query embedding exceeded the configured deadline.
// It is transient: callers retry it within their retry budget.
type TimeoutError struct {
	Query   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("retrieval timed out after %s embedding query %q", e.Elapsed.Round(time.Millisecond), e.Query)
}

// Transient marks the error as retryable.
func (e *TimeoutError) Transient() bool { return true }
