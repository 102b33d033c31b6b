// Package client holds the error kinds shared by the taskweb client packages.
package client

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials means the server rejected a login.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrForbidden means the action is not allowed for the current user, either
	// by the local check or by the server.
	ErrForbidden = errors.New("action not allowed for the current user")
	// ErrSessionExpired means an authenticated call was answered with 401.
	ErrSessionExpired = errors.New("session expired, please log in again")
	// ErrNotAuthenticated means no session is held.
	ErrNotAuthenticated = errors.New("not logged in")
	// ErrLoginAborted means a login finished after it was superseded by a newer
	// login or a logout; its result was discarded.
	ErrLoginAborted = errors.New("login aborted")
	// ErrInvalidTransition means the requested status is not reachable from
	// the task's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotFound means the server has no such resource.
	ErrNotFound = errors.New("not found")
)

// StorageError reports a failed read or write of the persisted session.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// APIError is a server answer that maps to no more specific kind.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}
