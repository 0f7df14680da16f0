package config

import (
	"fmt"

	"github.com/kilianp07/dspfactory/core/factory"
)

// DefaultHTTPAddr is the API listen address when none is configured.
const DefaultHTTPAddr = ":8080"

// HTTPConfig defines the API listener.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on /factories.
	Token          string `json:"token"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultHTTPAddr
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 32 << 20
	}
}

func (c HTTPConfig) Validate() error {
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	return nil
}

// WriteConfig holds the variant used when the caller does not pick one.
type WriteConfig struct {
	Binary bool `json:"binary"`
	Small  bool `json:"small"`
}

func (c WriteConfig) Options() factory.WriteOptions {
	return factory.WriteOptions{Binary: c.Binary, Small: c.Small}
}
