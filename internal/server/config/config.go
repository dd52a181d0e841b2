// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the forum server.
//
// Fields:
//   - EndpointAddr: bind address for the UDP command endpoint.
//   - UploadDir: directory receiving uploaded thread files.
//   - CredentialsFile: path of the username/hash credential file.
//   - SecretKey: HMAC secret for signing transfer tickets (HS256). Do not
//     use test defaults in prod.
//   - TicketValidityDuration: transfer ticket lifetime.
//   - AckTimeout: wait before the first retransmission of an unacknowledged
//     packet; doubles per retry.
//   - MaxRetries: retransmissions attempted before a client is declared gone.
//   - InactivityTimeout: idle time after which a client conversation is
//     reaped.
//   - LossRate: fraction of outbound packets deliberately dropped, for
//     exercising retransmission. Zero in normal operation.
type Config struct {
	EndpointAddr           string
	UploadDir              string
	CredentialsFile        string
	SecretKey              string
	TicketValidityDuration time.Duration
	AckTimeout             time.Duration
	MaxRetries             int
	InactivityTimeout      time.Duration
	LossRate               float64
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = "127.0.0.1:8866"
	c.UploadDir = "uploads"
	c.CredentialsFile = "credentials.txt"
	c.SecretKey = "secretKey"
	c.TicketValidityDuration = 1 * time.Minute
	c.AckTimeout = 2 * time.Second
	c.MaxRetries = 3
	c.InactivityTimeout = 5 * time.Minute
	c.LossRate = 0
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
