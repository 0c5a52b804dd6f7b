package provider

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/bitorder/backend"
)

// ErrProvider is the root of every error returned by this package.
var ErrProvider = errors.New("provider error")

var (
	ErrCredentials = fmt.Errorf("%w: credentials invalid", ErrProvider)
	ErrBadBackend  = fmt.Errorf("%w: backend is not available", ErrProvider)
	ErrNoBackend   = fmt.Errorf("%w: no backend", ErrProvider)
	ErrJobTimeout  = fmt.Errorf("%w: %w", ErrProvider, backend.ErrJobTimeout)
	ErrJobFailed   = fmt.Errorf("%w: job failed", ErrProvider)
)

// APIError is a non 2xx answer of the remote API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == 401 || e.StatusCode == 403 {
		return ErrCredentials
	}
	return ErrProvider
}
