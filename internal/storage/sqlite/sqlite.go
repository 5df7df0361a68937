// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the only SQLite-specific concerns are creating the
// in-memory DB and the periodic dump.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/internal/database"
	gormstorage "github.com/squadwarden/warden/internal/storage/gorm"
	"gorm.io/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	logger   *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new SQLite storage backend. An empty dsn uses the shared
// in-memory database.
func New(dsn string, cfg config.SQLiteConfig, gormCfg config.GormConfig, logger *slog.Logger) (*Backend, error) {
	db, err := database.GetSqliteDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite DB: %w", err)
	}
	return Wrap(db, cfg, gormCfg, logger), nil
}

// Wrap builds the backend on an open SQLite connection.
func Wrap(db *gorm.DB, cfg config.SQLiteConfig, gormCfg config.GormConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: db, Config: gormCfg, Logger: logger}),
		db:      db,
		cfg:     cfg,
		logger:  logger.With("storage", "sqlite"),
	}
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, closes the embedded GORM backend and
// writes a final dump.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.wg.Wait()
		b.stopChan = nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" {
		return nil
	}
	return b.Dump()
}

// Dump flushes pending records and snapshots the database to DumpPath.
func (b *Backend) Dump() error {
	if err := b.Flush(); err != nil {
		return err
	}
	return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.logger.Error("Error dumping to disk", "error", err)
			} else {
				b.logger.Debug("Dumped to disk", "duration", time.Since(start))
			}
		}
	}
}
