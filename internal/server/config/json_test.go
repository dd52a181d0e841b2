package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr":           "www.example:9000",
		"upload_dir":              "/srv/uploads",
		"credentials_file":        "/srv/credentials.txt",
		"secret_key":              "my_secret_key",
		"ticket_validity_seconds": 90,
		"ack_timeout_millis":      500,
		"max_retries":             5,
		"inactivity_seconds":      120,
		"loss_rate":               0.25,
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddr)
		assert.Equal(t, "/srv/uploads", cfg.UploadDir)
		assert.Equal(t, "/srv/credentials.txt", cfg.CredentialsFile)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 90*time.Second, cfg.TicketValidityDuration)
		assert.Equal(t, 500*time.Millisecond, cfg.AckTimeout)
		assert.Equal(t, 5, cfg.MaxRetries)
		assert.Equal(t, 2*time.Minute, cfg.InactivityTimeout)
		assert.Equal(t, 0.25, cfg.LossRate)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			EndpointAddr:      "defaults:1234",
			UploadDir:         "uploads",
			CredentialsFile:   "credentials.txt",
			SecretKey:         "key",
			AckTimeout:        2 * time.Second,
			MaxRetries:        3,
			InactivityTimeout: 5 * time.Minute,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddr)
		assert.Equal(t, "uploads", cfg.UploadDir)
		assert.Equal(t, "credentials.txt", cfg.CredentialsFile)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, 2*time.Second, cfg.AckTimeout)
		assert.Equal(t, 3, cfg.MaxRetries)
		assert.Equal(t, 5*time.Minute, cfg.InactivityTimeout)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
