package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/internal/database"
	"github.com/squadwarden/warden/internal/influx"
	intOtel "github.com/squadwarden/warden/internal/otel"
	"github.com/squadwarden/warden/internal/storage"
	gormstorage "github.com/squadwarden/warden/internal/storage/gorm"
	"github.com/squadwarden/warden/internal/storage/memory"
	sqlitestorage "github.com/squadwarden/warden/internal/storage/sqlite"
)

// storageStack is the journal backend plus the connections it owns.
type storageStack struct {
	backend storage.Backend
	db      *database.Manager
}

// Backend returns the combined journal.
func (s *storageStack) Backend() storage.Backend {
	if s.backend == nil {
		return storage.Discard{}
	}
	return s.backend
}

// Init initializes every backend.
func (s *storageStack) Init() error {
	return s.Backend().Init()
}

// Close flushes the backends and closes the database connection.
func (s *storageStack) Close() error {
	err := s.Backend().Close()
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}

// createStorageStack builds the configured journal backend and fans it out
// to the metric journal and, when enabled, InfluxDB.
func createStorageStack(ctx context.Context, storageCfg config.StorageConfig, server config.ServerConfig, provider *intOtel.Provider, logger *slog.Logger, zl zerolog.Logger) (*storageStack, error) {
	stack := &storageStack{}

	primary, err := createStorageBackend(stack, storageCfg, server, logger, zl)
	if err != nil {
		if stack.db != nil {
			err = errors.Join(err, stack.db.Close())
		}
		return nil, err
	}

	backends := storage.Fanout{primary}
	if provider != nil {
		backends = append(backends, intOtel.NewJournalFromProvider(provider))
	}

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		backupPath := filepath.Join(viper.GetString("logsDir"),
			fmt.Sprintf("influx_backup_%s.lp.gz", time.Now().Format("20060102_150405")))
		m := influx.NewManager(influxCfg, zl.With().Str("component", "influx").Logger(), backupPath)
		if err := m.Connect(ctx); err != nil {
			logger.Warn("InfluxDB unavailable, skipping", "error", err)
		} else {
			backends = append(backends, influx.NewBackend(m, server.Name))
			logger.Info("InfluxDB journal enabled", "valid", m.IsValid)
		}
	}

	stack.backend = backends
	return stack, nil
}

func createStorageBackend(stack *storageStack, storageCfg config.StorageConfig, server config.ServerConfig, logger *slog.Logger, zl zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		m := database.NewManager(config.GetDatabaseConfig(), zl.With().Str("component", "database").Logger())
		if err := m.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		stack.db = m
		if err := m.Setup(server.Name, server.LogPath); err != nil {
			return nil, fmt.Errorf("failed to set up database: %w", err)
		}
		if m.ShouldSaveLocal {
			logger.Info("SQLite fallback storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath)
			return sqlitestorage.Wrap(m.DB, storageCfg.SQLite, storageCfg.Gorm, logger), nil
		}
		logger.Info("Postgres storage backend initialized")
		return gormstorage.New(gormstorage.Dependencies{
			DB:     m.DB,
			Config: storageCfg.Gorm,
			Logger: logger,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New("", storageCfg.SQLite, storageCfg.Gorm, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath)
		return backend, nil

	case "none":
		return storage.Discard{}, nil

	default:
		logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil
	}
}
