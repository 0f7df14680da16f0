// Package blob selects a blob.Store implementation from configuration.
package blob

import (
	"context"
	"fmt"

	"github.com/kilianp07/dspfactory/core/blob"
	"github.com/kilianp07/dspfactory/infra/blob/fs"
	"github.com/kilianp07/dspfactory/infra/blob/memory"
	"github.com/kilianp07/dspfactory/infra/blob/s3"
)

// Config defines the blob storage settings.
type Config struct {
	// Driver is fs, s3 or memory. Empty means fs.
	Driver string    `json:"driver"`
	Root   string    `json:"root"`
	S3     s3.Config `json:"s3"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = string(blob.DriverFilesystem)
	}
	if c.Driver == string(blob.DriverFilesystem) && c.Root == "" {
		c.Root = "./factories"
	}
}

// Validate checks the driver and its mandatory fields.
func (c Config) Validate() error {
	switch blob.Driver(c.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
		return nil
	case blob.DriverS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown blob driver %s", c.Driver)
	}
}

// Open builds the configured store.
func Open(ctx context.Context, cfg Config) (blob.Store, error) {
	switch blob.Driver(cfg.Driver) {
	case blob.DriverFilesystem, "":
		return fs.New(cfg.Root)
	case blob.DriverS3:
		return s3.New(ctx, cfg.S3)
	case blob.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
