// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues and a background writer goroutine. It serves Postgres and,
// through sqlitestorage, SQLite.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/squadwarden/warden/internal/config"
	"github.com/squadwarden/warden/internal/database"
	"github.com/squadwarden/warden/internal/model"
	"github.com/squadwarden/warden/internal/model/convert"
	"github.com/squadwarden/warden/internal/queue"
	"github.com/squadwarden/warden/pkg/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Config config.GormConfig
	Logger *slog.Logger
}

// maxQueued bounds each write queue while the database is unreachable.
const maxQueued = 50000

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Actions     *queue.Queue[model.Action]
	Escalations *queue.Queue[model.Escalation]
	Claims      *queue.Queue[model.Claim]
}

func newQueues() *queues {
	return &queues{
		Actions:     queue.New[model.Action](maxQueued),
		Escalations: queue.New[model.Escalation](maxQueued),
		Claims:      queue.New[model.Claim](maxQueued),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues
	logger *slog.Logger

	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend. With a nil DB records stay queued.
func New(deps Dependencies) *Backend {
	if deps.Config.FlushInterval <= 0 {
		deps.Config.FlushInterval = 2 * time.Second
	}
	if deps.Config.BatchSize <= 0 {
		deps.Config.BatchSize = 500
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
		logger: deps.Logger.With("storage", "gorm"),
	}
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB != nil {
		if err := database.Migrate(b.deps.DB); err != nil {
			close(b.done)
			return fmt.Errorf("failed to setup DB: %w", err)
		}
	}

	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return b.Flush()
}

// StartRound inserts the round row synchronously.
func (b *Backend) StartRound(r *core.Round) error {
	if b.deps.DB == nil {
		return nil
	}
	row := convert.CoreToRound(*r)
	err := b.deps.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

// EndRound flushes pending records and stamps the round end time.
func (b *Backend) EndRound(r *core.Round) error {
	if b.deps.DB == nil {
		return nil
	}
	if err := b.Flush(); err != nil {
		return err
	}
	err := b.deps.DB.Model(&model.Round{}).Where("id = ?", r.ID).Update("ended_at", r.EndedAt).Error
	if err != nil {
		return fmt.Errorf("failed to end round: %w", err)
	}
	return nil
}

// RecordAction converts and queues an action record.
func (b *Backend) RecordAction(a *core.ActionRecord) error {
	b.queues.Actions.Push(convert.CoreToAction(*a))
	return nil
}

// RecordEscalation converts and queues an escalation record.
func (b *Backend) RecordEscalation(e *core.EscalationRecord) error {
	b.queues.Escalations.Push(convert.CoreToEscalation(*e))
	return nil
}

// RecordClaim converts and queues a claim record.
func (b *Backend) RecordClaim(c *core.ClaimRecord) error {
	b.queues.Claims.Push(convert.CoreToClaim(*c))
	return nil
}

// QueueLengths reports pending writes per table.
func (b *Backend) QueueLengths() map[string]int {
	return map[string]int{
		"actions":     b.queues.Actions.Len(),
		"escalations": b.queues.Escalations.Len(),
		"claims":      b.queues.Claims.Len(),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Flush writes every queue to the database now.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	size := b.deps.Config.BatchSize
	return errors.Join(
		writeQueue(b.deps.DB, b.queues.Actions, "actions", size, b.logger),
		writeQueue(b.deps.DB, b.queues.Escalations, "escalations", size, b.logger),
		writeQueue(b.deps.DB, b.queues.Claims, "claims", size, b.logger),
	)
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items are pushed back for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, batchSize int, logger *slog.Logger) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&items, batchSize).Error
	})
	if err != nil {
		logger.Error("Error writing queue", "queue", name, "count", len(items), "error", err)
		q.Requeue(items)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// writerLoop periodically drains queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.Config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Flush(); err == nil {
				b.logger.Debug("Flushed journal queues", "duration", time.Since(start))
			}
		}
	}
}

