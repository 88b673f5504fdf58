// Package shared contains cross-module infrastructure: audit logging,
// idempotency keys, pagination and lock key helpers.
package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)
