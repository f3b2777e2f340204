package core

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/almecha/GlucoseIoT/internal/infra/persistence/file"
	"github.com/almecha/GlucoseIoT/internal/infra/persistence/memory"
	"github.com/almecha/GlucoseIoT/internal/infra/persistence/postgres"
	"github.com/almecha/GlucoseIoT/internal/infra/persistence/sqlite"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageFile     StorageDriver = "file"     // single JSON document
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageOptions selects and configures the durable backend.
type StorageOptions struct {
	Driver      StorageDriver
	FilePath    string
	SQLitePath  string
	PostgresDSN string
	// Defaults seed the catalog-level fields of a fresh or damaged document.
	Defaults Metadata
	Logger   *zap.Logger
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// OpenPersistentStore opens the configured backend, restores and heals the
// stored document, and writes the healed form back once. The returned closer
// releases the backend's connections.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *RulesEngine) (*memory.Store, io.Closer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	driver := opts.Driver
	if driver == "" {
		driver = StorageFile
	}
	var (
		persister domain.Persister
		closer    io.Closer = nopCloser
		location  string
	)
	switch driver {
	case StorageMemory:
	case StorageFile:
		fs, err := file.New(opts.FilePath)
		if err != nil {
			return nil, nil, err
		}
		persister, location = fs, fs.Path()
	case StorageSQLite:
		ss, err := sqlite.NewStore(opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		persister, closer, location = ss, ss, ss.Path()
	case StoragePostgres:
		ps, err := postgres.NewStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		persister, closer = ps, ps
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}

	var storeOpts []memory.Option
	if persister != nil {
		storeOpts = append(storeOpts, memory.WithPersister(persister))
	}
	store := memory.NewStore(engine, storeOpts...)
	notes, err := store.Restore(ctx, opts.Defaults)
	for _, note := range notes {
		logger.Warn("catalog document repaired", zap.String("driver", string(driver)), zap.String("note", note))
	}
	if err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("restore catalog: %w", err)
	}
	logger.Info("catalog store ready", zap.String("driver", string(driver)), zap.String("location", location))
	return store, closer, nil
}
