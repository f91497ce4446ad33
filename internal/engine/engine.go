package engine

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hoangtv090103/godb/internal/catalog"
	"github.com/hoangtv090103/godb/internal/storage"
)

// Config configures an Engine.
type Config struct {
	// Path is the database file. It is created if it does not exist.
	Path string
	// PoolSize is the number of buffer pool frames; process-wide.
	PoolSize int
	// CheckpointSchedule is an optional cron expression (e.g.
	// "@every 1m") for background FlushAllPages calls. Empty disables
	// the scheduler.
	CheckpointSchedule string
}

// Engine owns one open database file: its Disk Manager, Buffer Pool
// Manager, and Catalog, plus the SQL dispatch layer over them.
type Engine struct {
	InstanceID uuid.UUID

	disk     *storage.DiskManager
	pool     *storage.BufferPoolManager
	catalog  *catalog.Catalog
	executor *Executor
	log      *slog.Logger
}

// Open opens (or creates) the database file at cfg.Path and loads its
// catalog.
func Open(cfg Config) (*Engine, error) {
	instanceID := storage.NewInstanceID()
	log := slog.Default().With("component", "engine", "instance_id", instanceID.String())

	disk, err := storage.OpenDiskManager(storage.DiskManagerConfig{Path: cfg.Path})
	if err != nil {
		return nil, fmt.Errorf("engine: open disk manager: %w", err)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 64
	}
	pool := storage.NewBufferPoolManager(disk, storage.NewLRUReplacer(), storage.BufferPoolConfig{PoolSize: poolSize})

	// Page 0 is reserved for the catalog. A fresh file has no pages
	// yet, so NewPage mints id 0 here; the allocator then never hands
	// it to a table heap.
	if disk.NumPages() == 0 {
		page, ok := pool.NewPage()
		if !ok {
			return nil, fmt.Errorf("engine: could not allocate catalog root page")
		}
		if page.ID() != catalog.RootPageID {
			return nil, fmt.Errorf("engine: expected catalog root page id %d, got %d", catalog.RootPageID, page.ID())
		}
		if err := pool.UnpinPage(page.ID(), true); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}

	cat, err := catalog.Open(pool)
	if err != nil {
		return nil, fmt.Errorf("engine: open catalog: %w", err)
	}

	e := &Engine{
		InstanceID: instanceID,
		disk:       disk,
		pool:       pool,
		catalog:    cat,
		executor:   NewExecutor(cat),
		log:        log,
	}

	if cfg.CheckpointSchedule != "" {
		if err := pool.StartCheckpointScheduler(cfg.CheckpointSchedule); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}

	log.Info("engine opened", "path", cfg.Path, "pool_size", poolSize)
	return e, nil
}

// Execute parses and runs one SQL statement.
func (e *Engine) Execute(sql string) (*Result, error) {
	cmd, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(cmd)
}

// Catalog returns the engine's catalog, for callers (the CLI) that
// need to list tables directly.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Close flushes every dirty page, stops the checkpoint scheduler if
// running, and closes the underlying file.
func (e *Engine) Close() error {
	e.pool.StopCheckpointScheduler()
	if err := e.pool.FlushAllPages(); err != nil {
		return fmt.Errorf("engine: close: %w", err)
	}
	if err := e.disk.Shutdown(); err != nil {
		return fmt.Errorf("engine: close: %w", err)
	}
	e.log.Info("engine closed")
	return nil
}
