package client

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Kind    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	switch e.Status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Status == http.StatusNotFound
}

// IsEnded reports whether the server rejected the call because the session has ended.
func IsEnded(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Code == "session_ended"
}

// IsForbidden reports whether the caller lacks permission.
func IsForbidden(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Status == http.StatusForbidden
}

// IsUnauthenticated reports whether the credentials were missing or rejected.
func IsUnauthenticated(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Status == http.StatusUnauthorized
}

// IsValidation reports whether the server rejected the input.
func IsValidation(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Status == http.StatusBadRequest
}

// IsTransient reports whether the call failed for a reason worth retrying later.
func IsTransient(err error) bool {
	e, ok := asAPIError(err)
	return ok && e.Temporary()
}
