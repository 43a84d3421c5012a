package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Common domain errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrJobLocked     = errors.New("job is being advanced by another caller")
	ErrNotConfigured = errors.New("provider not configured")
)

// ValidationError signals bad job-creation input. Never retried; surfaced
// to the caller immediately.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ProviderError wraps a non-2xx or malformed response from an external
// provider. Body carries the raw provider error text verbatim so failures
// stay debuggable.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Body)
}

// MigrationError is a durable-storage migration failure. ProviderURL keeps
// the ephemeral source URL so an operator can pull the asset manually
// before the provider expires it.
type MigrationError struct {
	Stage       string
	ProviderURL string
	Err         error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate %s output: %v (ephemeral url: %s)", e.Stage, e.Err, e.ProviderURL)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// TimeoutError means a single advance call exceeded its caller-visible
// bound. The job phase is left untouched; retrying the same advance is safe.
type TimeoutError struct {
	Phase string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("advance timed out during %s; retry is safe", e.Phase)
}

// IsRateLimited classifies errors eligible for submission retry.
// A coded 429 is authoritative; the substring heuristics are a fallback
// for providers that only report throttling in prose.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Status == 429 {
			return true
		}
		return hasRateLimitHint(pe.Body)
	}
	return hasRateLimitHint(err.Error())
}

func hasRateLimitHint(s string) bool {
	s = strings.ToLower(s)
	for _, hint := range []string{"rate", "limit", "throttle", "too many requests", "429"} {
		if strings.Contains(s, hint) {
			return true
		}
	}
	return false
}
