// Package blob re-exports the blob abstractions and selects a backend from
// configuration.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gravecore/internal/blob/core"
	"gravecore/internal/infra/blob/fs"
	"gravecore/internal/infra/blob/memory"
	"gravecore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound = core.ErrNotFound
	ErrExists   = core.ErrExists
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver   `toml:"driver"`
	FSRoot string   `toml:"fs_root"`
	S3     S3Config `toml:"s3"`
}

// ApplyEnv overlays environment variables on cfg:
//
//	GRAVECORE_BLOB_DRIVER: fs|s3|memory
//	GRAVECORE_BLOB_FS_ROOT: directory root when driver=fs
//	GRAVECORE_BLOB_S3_BUCKET, GRAVECORE_BLOB_S3_REGION, GRAVECORE_BLOB_S3_ENDPOINT,
//	GRAVECORE_BLOB_S3_PATH_STYLE=true|false
func (c Config) ApplyEnv() Config {
	if v := os.Getenv("GRAVECORE_BLOB_DRIVER"); v != "" {
		c.Driver = Driver(v)
	}
	if v := os.Getenv("GRAVECORE_BLOB_FS_ROOT"); v != "" {
		c.FSRoot = v
	}
	if v := os.Getenv("GRAVECORE_BLOB_S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	if v := os.Getenv("GRAVECORE_BLOB_S3_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := os.Getenv("GRAVECORE_BLOB_S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := os.Getenv("GRAVECORE_BLOB_S3_PATH_STYLE"); v != "" {
		c.S3.PathStyle = strings.EqualFold(v, "true")
	}
	return c
}

// Validate checks the driver name and its required settings.
func (c Config) Validate() error {
	switch c.Driver {
	case "", DriverFilesystem, DriverMemory:
		return nil
	case DriverS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("blob: s3 bucket required")
		}
		return nil
	default:
		return fmt.Errorf("blob: unknown driver %q", c.Driver)
	}
}

// Open constructs the configured backend. The filesystem driver is the default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	default:
		return fs.New(cfg.FSRoot)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memory.New() }

// NewMockS3ForTests exposes the fake-bucket S3 store for cross-package tests.
func NewMockS3ForTests() Store { return s3.NewMockForTests() }
