// Package config handles configuration for the client component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the forum CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the server's UDP command endpoint.
//   - DownloadDir: directory receiving downloaded files.
//   - AckTimeout: wait before the first retransmission of an unacknowledged
//     packet; doubles per retry.
//   - MaxRetries: retransmissions attempted before the server is declared
//     unreachable.
//   - LossRate: fraction of outbound packets deliberately dropped, for
//     exercising retransmission. Zero in normal operation.
type Config struct {
	ServerEndpointAddr string
	DownloadDir        string
	AckTimeout         time.Duration
	MaxRetries         int
	LossRate           float64
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:8866"
	c.DownloadDir = "downloads"
	c.AckTimeout = 2 * time.Second
	c.MaxRetries = 3
	c.LossRate = 0
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
