package client

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrNotActivated = errors.New("account not activated")
)

// StatusError is a non-2xx answer from the backend. Fields carries the
// per-field messages of a 400 validation failure.
type StatusError struct {
	Code    int
	Message string
	Fields  map[string]string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(http.StatusText(e.Code))
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Code, msg)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Code, msg, formatFields(e.Fields))
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrValidation:
		return e.Code == http.StatusBadRequest
	case ErrNotActivated:
		return e.Code == http.StatusUnauthorized &&
			strings.Contains(strings.ToLower(e.Message), "not activated")
	}
	return false
}

// NetworkError is a transport failure: the request never produced a
// response.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RefreshError reports that a 401 could not be recovered because the token
// refresh failed. It wraps the refresh failure, so errors.Is matches
// tokens.ErrNoRefreshToken and tokens.ErrRefreshRejected through it.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

func formatFields(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s", name, fields[name])
	}
	return strings.Join(parts, ", ")
}
