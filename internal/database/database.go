package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN is the shared in-memory SQLite database.
const MemoryDSN = "file::memory:?cache=shared"

var pragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA cache_size = -32000;",
	"PRAGMA temp_store = MEMORY;",
	"PRAGMA page_size = 32768;",
}

// Manager handles database connections and operations.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	SqliteFilePath  string
	Logger          zerolog.Logger

	cfg config.DatabaseConfig
}

// NewManager creates a new database manager.
func NewManager(cfg config.DatabaseConfig, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		Logger: log,
	}
}

// Connect establishes a database connection, falling back to SQLite if Postgres fails.
func (m *Manager) Connect() error {
	var err error

	m.DB, err = GetPostgresDB(m.cfg)
	if err == nil {
		m.SqlDB, err = m.DB.DB()
		if err == nil {
			err = m.SqlDB.Ping()
		}
	}
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
		return m.connectLocal()
	}

	m.Logger.Info().Str("host", m.cfg.Host).Msg("Connected to database")
	m.SqlDB.SetMaxOpenConns(10)
	m.IsValid = true
	return nil
}

func (m *Manager) connectLocal() error {
	m.ShouldSaveLocal = true
	db, err := GetSqliteDB("")
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	m.DB = db
	if m.SqlDB, err = db.DB(); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	m.Logger.Info().Msg("Using local SQLite DB in memory with periodic disk dump")
	m.IsValid = true
	return nil
}

// Setup migrates tables and records the instance if it is new.
func (m *Manager) Setup(serverName, logPath string) error {
	if err := Migrate(m.DB); err != nil {
		m.IsValid = false
		return err
	}

	var count int64
	if err := m.DB.Model(&model.WardenInfo{}).Where("server_name = ?", serverName).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to read warden_infos: %w", err)
	}
	if count == 0 {
		err := m.DB.Create(&model.WardenInfo{ServerName: serverName, LogPath: logPath}).Error
		if err != nil {
			return fmt.Errorf("failed to create warden_infos entry: %w", err)
		}
	}

	m.Logger.Info().Msg("Database setup complete")
	return nil
}

// DumpMemoryToDisk vacuums the in-memory database to a file.
func (m *Manager) DumpMemoryToDisk() error {
	start := time.Now()
	if err := DumpMemoryDBToDisk(m.DB, m.SqliteFilePath); err != nil {
		return err
	}
	m.Logger.Debug().Dur("duration", time.Since(start)).Msg("Dumped memory DB to disk")
	return nil
}

// Close closes the underlying connection.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}

// GetBackupDBPaths returns paths to all .db files in the given directory.
func GetBackupDBPaths(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dbPaths []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".db") {
			dbPaths = append(dbPaths, filepath.Join(dir, file.Name()))
		}
	}
	return dbPaths, nil
}

// Migrate creates or updates every journal table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// GetPostgresDB returns a connection to the Postgres database.
func GetPostgresDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database,
	)

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// GetSqliteDB returns a connection to a SQLite database.
// If path is empty, uses the shared in-memory database.
func GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}

// DumpMemoryDBToDisk vacuums the in-memory database to a disk file.
func DumpMemoryDBToDisk(db *gorm.DB, sqliteFilePath string) error {
	if sqliteFilePath == "" {
		return fmt.Errorf("sqlite file path not set")
	}

	// VACUUM INTO refuses to overwrite
	if _, err := os.Stat(sqliteFilePath); err == nil {
		if err := os.Remove(sqliteFilePath); err != nil {
			return fmt.Errorf("error removing existing DB file: %w", err)
		}
	}

	err := db.Exec("VACUUM INTO ?", sqliteFilePath).Error
	if err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}

	return nil
}
