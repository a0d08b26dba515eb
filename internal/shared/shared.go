// Package shared holds the browser-session plumbing used by every console
// page: Redis sessions, flash messages and CSRF tokens.
package shared

import "errors"

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials covers every sign-in failure so callers cannot
	// tell unknown emails from wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
