package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_parseFlags_OverridesSelectedFields(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin",
		"-a", "example.com:9999",
		"-d", "/tmp/downloads",
		"-t", "300",
		"-r", "6",
		"-l", "0.05",
	}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, "example.com:9999", cfg.ServerEndpointAddr)
	assert.Equal(t, "/tmp/downloads", cfg.DownloadDir)
	assert.Equal(t, 300*time.Millisecond, cfg.AckTimeout)
	assert.Equal(t, 6, cfg.MaxRetries)
	assert.Equal(t, 0.05, cfg.LossRate)
}

func Test_parseFlags_KeepsDefaultsWithoutFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, "127.0.0.1:8866", cfg.ServerEndpointAddr)
	assert.Equal(t, 2*time.Second, cfg.AckTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
}
