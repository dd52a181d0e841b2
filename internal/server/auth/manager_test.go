package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udpforum/internal/server/creds"
)

func TestVerify_AutoProvisionThenAcceptReject(t *testing.T) {
	m := NewManager(creds.NewMemoryRepository())
	ctx := context.Background()

	out, err := m.Verify(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, Created, out)

	out, err = m.Verify(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, Accepted, out)

	out, err = m.Verify(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.Equal(t, Rejected, out)
}

func TestVerify_ConcurrentFirstLoginsCreateOneRecord(t *testing.T) {
	m := NewManager(creds.NewMemoryRepository())
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := m.Verify(ctx, "newbie", "pw")
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	created := 0
	for _, out := range outcomes {
		switch out {
		case Created:
			created++
		case Accepted:
			// later arrivals match the record the winner created
		default:
			t.Fatalf("unexpected outcome %v", out)
		}
	}
	assert.Equal(t, 1, created)
}

func TestVerify_StoresHashNotPassword(t *testing.T) {
	repo := creds.NewMemoryRepository()
	m := NewManager(repo)
	ctx := context.Background()

	_, err := m.Verify(ctx, "alice", "secret")
	require.NoError(t, err)

	hash, err := repo.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", hash)
	assert.Contains(t, hash, "$2") // bcrypt prefix
}
