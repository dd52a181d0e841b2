package creds

import (
	"context"
	"fmt"
	"sync"

	"udpforum/internal/common"
)

// MemoryRepository is a map-backed credential store used in tests.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]string)}
}

func (r *MemoryRepository) Lookup(ctx context.Context, username string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.users[username]
	if !ok {
		return "", fmt.Errorf("user %s: %w", username, common.ErrNotFound)
	}
	return hash, nil
}

func (r *MemoryRepository) Store(ctx context.Context, username, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[username] = hash
	return nil
}
