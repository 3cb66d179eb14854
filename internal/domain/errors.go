package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound matches any *NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports that the upstream has no record for Key.
type NotFoundError struct {
	Resource string // "address", "city", "forecast"
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DataIncompleteError reports an upstream payload missing required fields.
type DataIncompleteError struct {
	Resource string
	Missing  []string
}

func (e *DataIncompleteError) Error() string {
	return fmt.Sprintf("%s response missing required fields: %s", e.Resource, strings.Join(e.Missing, ", "))
}

// TimeoutError reports a call that exceeded its budget.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ProviderError reports any other upstream failure. StatusCode is zero for
// network-level failures.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError reports malformed input caught before any network call.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
