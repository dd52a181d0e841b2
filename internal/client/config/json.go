package config

import (
	"encoding/json"
	"os"
	"time"

	"udpforum/internal/flagx"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. Durations are carried as plain integers so config files
// stay free of unit suffixes.
//
// This struct is an intermediate DTO (Data Transfer Object) used only for
// reading JSON configuration files. After unmarshalling, its fields are
// copied into the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	ServerEndpointAddr string  `json:"server_endpoint_addr"`
	DownloadDir        string  `json:"download_dir"`
	AckTimeoutMillis   int     `json:"ack_timeout_millis"`
	MaxRetries         int     `json:"max_retries"`
	LossRate           float64 `json:"loss_rate"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// If the file path is found, parseJson attempts to read and unmarshal it
// into a JsonConfig. The resulting values are copied into the target Config.
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.ServerEndpointAddr = c.ServerEndpointAddr
	config.DownloadDir = c.DownloadDir
	config.AckTimeout = time.Duration(c.AckTimeoutMillis) * time.Millisecond
	config.MaxRetries = c.MaxRetries
	config.LossRate = c.LossRate
}
