// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrTicketNotFound is returned when the issue tracker does not know a ticket key
// or the ticket is not accessible with the configured credentials.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrRunLocked is returned when another process already holds the single-writer lock.
var ErrRunLocked = errors.New("another sync run holds the writer lock")

// ErrInvalidRepoFormat is returned when a repository string in the config is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// ErrMissingConfig is returned when a required configuration field is empty.
type ErrMissingConfig struct {
	Field string
}

func (e *ErrMissingConfig) Error() string {
	return fmt.Sprintf("%s is a required configuration field", e.Field)
}

// ErrUpstream wraps a failed call to an external collaborator.
type ErrUpstream struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ErrUpstream) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request failed with status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed with status %d", e.Service, e.StatusCode)
}

func (e *ErrUpstream) Unwrap() error {
	return e.Err
}

// IsTransientStatus reports whether an HTTP status is worth one retry.
func IsTransientStatus(code int) bool {
	return code == 429 || code >= 500
}
