package core

import (
	"context"
	"fmt"
	"os"

	"gravecore/internal/infra/persistence/memory"
	"gravecore/internal/infra/persistence/postgres"
	"gravecore/internal/infra/persistence/sqlite"
	"gravecore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects a backend.
type StorageConfig struct {
	Driver      StorageDriver `toml:"driver"`
	SQLitePath  string        `toml:"sqlite_path"`
	PostgresDSN string        `toml:"postgres_dsn"`
}

// ApplyEnv overlays environment variables on cfg:
//
//	GRAVECORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	GRAVECORE_SQLITE_PATH: path to sqlite file (default ./gravecore.db)
//	GRAVECORE_POSTGRES_DSN: postgres DSN when driver=postgres
func (c StorageConfig) ApplyEnv() StorageConfig {
	if v := os.Getenv("GRAVECORE_STORAGE_DRIVER"); v != "" {
		c.Driver = StorageDriver(v)
	}
	if v := os.Getenv("GRAVECORE_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := os.Getenv("GRAVECORE_POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	return c
}

// Validate rejects unknown drivers.
func (c StorageConfig) Validate() error {
	switch c.Driver {
	case "", StorageMemory, StorageSQLite, StoragePostgres:
		return nil
	default:
		return fmt.Errorf("unknown storage driver %s", c.Driver)
	}
}

// OpenPersistentStore opens the configured backend, defaulting to sqlite.
// A nil engine selects NewDefaultRulesEngine.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine)
	default:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	}
}
