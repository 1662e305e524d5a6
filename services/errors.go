package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers lookups of sources, jobs and groups that do not
	// exist for the requesting owner.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when a record exists but belongs to a
	// different owner.
	ErrForbidden = errors.New("forbidden")

	// ErrAuthFailed means the provider rejected the stored credentials.
	// Never retried automatically.
	ErrAuthFailed = errors.New("auth_failed: provider credentials rejected")

	// ErrProviderUnavailable means the provider kept failing transiently
	// after bounded retries.
	ErrProviderUnavailable = errors.New("provider_unavailable: provider not reachable")

	// ErrQuotaExceeded means the plan guard refused further imports.
	ErrQuotaExceeded = errors.New("quota_exceeded: account photo limit reached")

	// ErrStateConflict covers operations invalid for the current state:
	// rollback of a non-completed job, cancel of a terminal job, resume of a
	// running one. State is left untouched.
	ErrStateConflict = errors.New("state_conflict: operation not valid for current state")

	// ErrActiveJobExists is the create-path flavour of a state conflict: the
	// owner already has a non-terminal import job.
	ErrActiveJobExists = errors.New("state_conflict: an import job is already active for this account")

	// ErrServiceUnavailable gates connect() for catalog entries that are
	// inactive or still under app review.
	ErrServiceUnavailable = errors.New("service_unavailable: import service is not available")
)

// ProviderError wraps a failure from a provider adapter and records whether
// the connector may retry it.
type ProviderError struct {
	Code      string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("provider error (%s): %v", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
