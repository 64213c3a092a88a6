// Package apierrors defines the error taxonomy shared by the upstream API clients.
// Every failure that crosses a client boundary is classified as auth, network or api
// so callers can decide between re-authenticating, retrying and giving up.
package apierrors

import (
	"errors"
	"fmt"
)

// Class represents the classification of an upstream call failure.
type Class string

const (
	// ClassAuth indicates invalid credentials or an exhausted re-authentication budget.
	// Terminal for the call that produced it.
	ClassAuth Class = "auth"

	// ClassNetwork indicates a transport fault that persisted after the network retry.
	ClassNetwork Class = "network"

	// ClassAPI indicates a non-auth, non-200 response. Never retried.
	ClassAPI Class = "api"
)

// KindInternal is reported by Kind for errors outside the taxonomy.
const KindInternal = "internal"

// Error is a classified upstream error.
type Error struct {
	// Class is the error classification.
	Class Class `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Status is the HTTP status code, when one was received.
	Status int `json:"status,omitempty"`

	// Endpoint is the endpoint being called when the error occurred.
	Endpoint string `json:"endpoint,omitempty"`

	// Account is the upstream account identity, if applicable.
	Account string `json:"account,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.Status)
	}
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s (endpoint=%s)", msg, e.Endpoint)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Status == 0 || e.Status == t.Status)
}

// NewAuthError creates a new auth error.
func NewAuthError(message string, err error) *Error {
	return &Error{Class: ClassAuth, Message: message, Err: err}
}

// NewNetworkError creates a new network error.
func NewNetworkError(message string, err error) *Error {
	return &Error{Class: ClassNetwork, Message: message, Err: err}
}

// NewAPIError creates a new api error for the given status code.
func NewAPIError(status int, message string) *Error {
	return &Error{Class: ClassAPI, Status: status, Message: message}
}

// WithEndpoint adds endpoint context to an error.
func (e *Error) WithEndpoint(endpoint string) *Error {
	e.Endpoint = endpoint
	return e
}

// WithStatus adds a status code to an error.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithAccount adds the account identity to an error.
func (e *Error) WithAccount(account string) *Error {
	e.Account = account
	return e
}

// IsAuth returns true if the error is classified as auth.
func IsAuth(err error) bool {
	return hasClass(err, ClassAuth)
}

// IsNetwork returns true if the error is classified as network.
func IsNetwork(err error) bool {
	return hasClass(err, ClassNetwork)
}

// IsAPI returns true if the error is classified as api.
func IsAPI(err error) bool {
	return hasClass(err, ClassAPI)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Kind maps any error to a short label: auth, network, api or internal.
// A nil error yields the empty string.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return string(e.Class)
	}
	return KindInternal
}

func hasClass(err error, class Class) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
