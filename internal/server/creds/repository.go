// Package creds defines the credential store the authentication manager
// delegates persistence to, with a line-file implementation matching the
// classic "username hash" credentials file, and an in-memory one for tests.
package creds

import "context"

// Repository stores one credential hash per username.
type Repository interface {
	// Lookup returns the stored hash, or common.ErrNotFound.
	Lookup(ctx context.Context, username string) (string, error)

	// Store saves the hash for a previously unknown username.
	Store(ctx context.Context, username, hash string) error
}
