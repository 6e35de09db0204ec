package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError carries the HTTP status of a failed collaborator call. The
// status code drives the recovery decision: 403 is the single class the
// engine attempts to heal from.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("collaborator returned status %d", e.Code)
	}
	return fmt.Sprintf("collaborator returned status %d: %s", e.Code, e.Message)
}

// IsForbidden reports whether err is an authorization failure (HTTP 403).
func IsForbidden(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusForbidden
}

// IsNotFound reports whether err maps to HTTP 404.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// IsConflict reports whether err maps to HTTP 409.
func IsConflict(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict
}
