package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, c.EndpointAddr, "127.0.0.1:8866")
	assert.Equal(t, c.UploadDir, "uploads")
	assert.Equal(t, c.CredentialsFile, "credentials.txt")
	assert.Equal(t, c.SecretKey, "secretKey")
	assert.Equal(t, c.TicketValidityDuration, 1*time.Minute)
	assert.Equal(t, c.AckTimeout, 2*time.Second)
	assert.Equal(t, c.MaxRetries, 3)
	assert.Equal(t, c.InactivityTimeout, 5*time.Minute)
	assert.Equal(t, c.LossRate, 0.0)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	c := LoadConfig()

	require.NotNil(t, c, "LoadConfig must not return nil")

	assert.Equal(t, c.EndpointAddr, "127.0.0.1:8866")
	assert.Equal(t, c.UploadDir, "uploads")
	assert.Equal(t, c.CredentialsFile, "credentials.txt")
	assert.Equal(t, c.SecretKey, "secretKey")
	assert.Equal(t, c.AckTimeout, 2*time.Second)
	assert.Equal(t, c.MaxRetries, 3)
}
