package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/squadwarden/warden/internal/config"
)

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		cfg:        cfg,
		Logger:     log,
		BackupPath: backupPath,
	}
}

// Connect establishes a connection to InfluxDB. When the server cannot be
// reached points go to a gzipped line protocol backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Warn().Str("backupPath", m.BackupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		return m.OpenBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

// OpenBackup opens the backup file for appending.
func (m *Manager) OpenBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// 90 day retention
	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid && m.Writer != nil {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := strings.TrimRight(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}
