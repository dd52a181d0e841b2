package creds

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"udpforum/internal/common"
)

// FileRepository keeps credentials in a plain text file, one
// "username hash" pair per line. The file is re-read on every lookup so
// external edits take effect without a restart; writes append.
type FileRepository struct {
	mu   sync.Mutex
	path string
}

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

func (r *FileRepository) Lookup(ctx context.Context, username string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("user %s: %w", username, common.ErrNotFound)
		}
		return "", fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, hash, ok := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if !ok {
			continue
		}
		if name == username {
			return hash, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read credentials file: %w", err)
	}
	return "", fmt.Errorf("user %s: %w", username, common.ErrNotFound)
}

func (r *FileRepository) Store(ctx context.Context, username, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s %s\n", username, hash); err != nil {
		return fmt.Errorf("append credentials file: %w", err)
	}
	return nil
}
