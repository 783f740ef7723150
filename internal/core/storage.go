package core

import (
	"fmt"
	"os"

	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/infra/persistence/memory"
	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/infra/persistence/postgres"
	"github.com/verifywise-ai/plugin-marketplace-sub002/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and parameterizes a persistence backend.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageOptionsFromEnv assembles storage options from environment variables.
//
//	VERIFYWISE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	VERIFYWISE_SQLITE_PATH: path to sqlite file (default ./verifywise.db)
//	VERIFYWISE_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageOptionsFromEnv() StorageOptions {
	return StorageOptions{
		Driver:      StorageDriver(os.Getenv("VERIFYWISE_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("VERIFYWISE_SQLITE_PATH"),
		PostgresDSN: os.Getenv("VERIFYWISE_POSTGRES_DSN"),
	}
}

// OpenPersistentStore selects a backend from the supplied options.
// Defaults to sqlite when the driver is unset.
func OpenPersistentStore(opts StorageOptions, engine *RulesEngine) (PersistentStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(opts.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(opts.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
