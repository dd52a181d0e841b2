// Package auth implements the authentication manager: credential
// verification with auto-provisioning of unknown usernames, plus the
// signed one-shot tickets the file transfer coordinator hands out.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"udpforum/internal/common"
	"udpforum/internal/server/creds"
)

// Outcome is the result of a credential check.
type Outcome int

const (
	// Accepted: known username, password matched.
	Accepted Outcome = iota
	// Rejected: known username, password did not match.
	Rejected
	// Created: unknown username auto-provisioned with the given password.
	Created
)

// Manager verifies username/password pairs against a credential store.
// Passwords are stored as bcrypt hashes.
type Manager struct {
	// mu serializes lookup-and-store so concurrent first logins of the
	// same new username create at most one record.
	mu   sync.Mutex
	repo creds.Repository
	cost int
}

func NewManager(repo creds.Repository) *Manager {
	return &Manager{repo: repo, cost: bcrypt.DefaultCost}
}

// Known reports whether the username already has a credential record, so
// the login exchange can prompt for an existing or a new password.
func (m *Manager) Known(ctx context.Context, username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.repo.Lookup(ctx, username)
	return err == nil
}

// Verify checks the credential. An unknown username is created with the
// given password and Created is returned.
func (m *Manager) Verify(ctx context.Context, username, password string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash, err := m.repo.Lookup(ctx, username)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return Rejected, fmt.Errorf("credential lookup: %w", err)
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
		if err != nil {
			return Rejected, fmt.Errorf("hash password: %w", err)
		}
		if err := m.repo.Store(ctx, username, string(hashed)); err != nil {
			return Rejected, fmt.Errorf("credential store: %w", err)
		}
		return Created, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Rejected, nil
	}
	return Accepted, nil
}
