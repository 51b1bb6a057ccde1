// Package substrate assembles the lineage components over a single database
// handle: the immutability guard, the identity-keyed registry, the audit
// ledger, and the workflow state machine. Producers embed a *Substrate and
// work through its stores; the guard is installed before any store is handed
// out, so no write path exists without append-only enforcement.
package substrate

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	internaldb "github.com/substratehq/lineage/internal/db"
	"github.com/substratehq/lineage/pkg/audit"
	"github.com/substratehq/lineage/pkg/guard"
	"github.com/substratehq/lineage/pkg/registry"
	"github.com/substratehq/lineage/pkg/workflow"
)

// Config controls optional substrate behavior.
type Config struct {
	// Logger receives structured operational logs. Nil means slog.Default().
	Logger *slog.Logger
	// SkipMigration suppresses AutoMigrate, for deployments that manage
	// schema out of band.
	SkipMigration bool
	// ProtectedKinds overrides the guarded table set. Nil means
	// guard.DefaultKinds().
	ProtectedKinds []guard.Kind
}

// Substrate is the assembled lineage layer.
type Substrate struct {
	db       *gorm.DB
	logger   *slog.Logger
	Registry *registry.Store
	Audit    *audit.Store
	Workflow *workflow.Service
}

// New installs the immutability guard on db, migrates the schema, and wires
// the component stores.
func New(db *gorm.DB, cfg Config) (*Substrate, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	kinds := cfg.ProtectedKinds
	if kinds == nil {
		kinds = guard.DefaultKinds()
	}
	if err := guard.Install(db, kinds); err != nil {
		return nil, err
	}

	registryStore := registry.NewStore(db)
	auditStore := audit.NewStore(db)
	workflowService := workflow.NewService(db, registryStore, auditStore, logger)

	if !cfg.SkipMigration {
		// Serialize AutoMigrate across replicas sharing the database.
		locker := internaldb.NewMigrationLocker(db)
		err := locker.WithLock(context.Background(), func() error {
			if err := registryStore.AutoMigrate(); err != nil {
				return err
			}
			if err := auditStore.AutoMigrate(); err != nil {
				return err
			}
			return workflowService.AutoMigrate()
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Info("substrate ready", "guard", guard.Installed(db), "protectedKinds", len(kinds))
	return &Substrate{
		db:       db,
		logger:   logger,
		Registry: registryStore,
		Audit:    auditStore,
		Workflow: workflowService,
	}, nil
}

// DB exposes the underlying handle for callers that need raw queries. The
// guard stays active on everything that goes through it.
func (s *Substrate) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Substrate) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("access underlying connection: %w", err)
	}
	return sqlDB.Close()
}
