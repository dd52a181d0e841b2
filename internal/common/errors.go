// Package common defines shared constants and sentinel errors used across
// the client and server layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrForbidden     = errors.New("forbidden")

	// Protocol-level errors.
	ErrMalformed = errors.New("malformed command")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")

	// Transport lifecycle errors.
	ErrPeerGone      = errors.New("peer unreachable: retry budget exhausted")
	ErrSessionClosed = errors.New("session closed")

	// Transfer errors.
	ErrTransferFailed = errors.New("transfer failed")
)
