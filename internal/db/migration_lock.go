package db

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// MigrationLocker serializes schema migrations across replicas, so two
// processes running AutoMigrate against the same database never interleave.
type MigrationLocker interface {
	// WithLock executes fn while holding the migration lock. It blocks
	// until the lock is acquired, then releases it after fn returns.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker creates a MigrationLocker appropriate for the database
// dialect. PostgreSQL uses advisory locks; other databases use a table-based
// fallback. The lock table is created immediately for the fallback strategy.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	if db == nil {
		return &noopMigrationLock{}
	}
	if db.Dialector.Name() == "postgres" {
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte("lineage-substrate-migration"))),
		}
	}
	lock := &tableMigrationLock{
		db:            db,
		retryInterval: time.Second,
		staleAfter:    5 * time.Minute,
		maxWait:       30 * time.Second,
	}
	// Create the lock table up front so concurrent callers never hit
	// "no such table" on their first WithLock call.
	_ = db.AutoMigrate(&migrationLockRecord{})
	return lock
}

// noopMigrationLock is used when no database is configured.
type noopMigrationLock struct{}

func (n *noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// pgAdvisoryLock uses PostgreSQL advisory locks for migration serialization.
type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	// Blocks until the lock is available.
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_ = l.db.Exec("SELECT pg_advisory_unlock(?)", l.lockID).Error
	}()
	return fn()
}

// migrationLockRecord is the table-based lock row for non-PostgreSQL
// databases.
type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// tableMigrationLock uses INSERT-or-fail semantics on a single-row lock
// table for SQLite and MySQL, with stale lock cleanup for crash recovery.
// Acquisition is bounded by maxWait rather than a retry count, so the
// budget stays the same if retryInterval is tuned.
type tableMigrationLock struct {
	db            *gorm.DB
	retryInterval time.Duration
	staleAfter    time.Duration
	maxWait       time.Duration
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return fn()
}

func (l *tableMigrationLock) acquire(ctx context.Context) error {
	holder, _ := os.Hostname()
	if holder == "" {
		holder = "unknown"
	}

	deadline := time.Now().Add(l.maxWait)
	var lastErr error
	for {
		// A holder that crashed leaves its row behind; expire it.
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", "migration", time.Now().Add(-l.staleAfter)).
			Delete(&migrationLockRecord{})

		result := l.db.WithContext(ctx).Create(&migrationLockRecord{
			ID:       "migration",
			LockedAt: time.Now(),
			LockedBy: holder,
		})
		if result.Error == nil {
			return nil
		}
		lastErr = result.Error

		if time.Now().After(deadline) {
			return fmt.Errorf("acquire migration lock within %s: %w", l.maxWait, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}

// release drops the lock row without the caller's context: the lock must be
// returned even when the migration was cancelled mid-flight.
func (l *tableMigrationLock) release() {
	l.db.Where("id = ?", "migration").Delete(&migrationLockRecord{})
}
