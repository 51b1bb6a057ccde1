// Package guard enforces append-only semantics for the substrate's protected
// entity kinds at the ORM boundary. Once installed on a *gorm.DB, any UPDATE
// or DELETE statement targeting a protected table is rejected before it
// reaches the database, so a rejected statement never partially persists and
// the enclosing transaction rolls back untouched.
//
// A caught violation always means a programming error in a calling component,
// never a transient condition. Callers must not retry; they must not have
// attempted the mutation at all.
package guard

import (
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// Kind identifies a protected entity kind by its table name. The set of
// kinds is a closed enumeration; the guard never inspects runtime types.
type Kind string

const (
	KindDatasetVersion      Kind = "dataset_versions"
	KindRawRecord           Kind = "raw_records"
	KindNormalizedRecord    Kind = "normalized_records"
	KindEvidenceRecord      Kind = "evidence_records"
	KindFindingRecord       Kind = "finding_records"
	KindFindingEvidenceLink Kind = "finding_evidence_links"
	KindWorkflowTransition  Kind = "workflow_transitions"
	KindAuditEntry          Kind = "audit_entries"
)

// DefaultKinds returns the full protected set. Workflow states are absent on
// purpose: they are mutated, but only through validated transitions.
func DefaultKinds() []Kind {
	return []Kind{
		KindDatasetVersion,
		KindRawRecord,
		KindNormalizedRecord,
		KindEvidenceRecord,
		KindFindingRecord,
		KindFindingEvidenceLink,
		KindWorkflowTransition,
		KindAuditEntry,
	}
}

// Violation codes.
const (
	CodeImmutableUpdate = "IMMUTABLE_UPDATE"
	CodeImmutableDelete = "IMMUTABLE_DELETE"
)

// ViolationError reports an attempted mutation of a protected kind.
type ViolationError struct {
	Code    string   `json:"code"`
	Kind    Kind     `json:"kind"`
	Columns []string `json:"columns,omitempty"`
}

func (e *ViolationError) Error() string {
	switch {
	case e.Code == CodeImmutableDelete:
		return fmt.Sprintf("immutable delete: %s records cannot be deleted", e.Kind)
	case len(e.Columns) > 0:
		return fmt.Sprintf("immutable update: %s records cannot be modified (columns: %v)", e.Kind, e.Columns)
	default:
		return fmt.Sprintf("immutable update: %s records cannot be modified", e.Kind)
	}
}

const (
	pluginName         = "substrate:immutability_guard"
	updateCallbackName = "substrate:guard_block_update"
	deleteCallbackName = "substrate:guard_block_delete"
)

// Guard is a gorm.Plugin blocking updates and deletes on protected tables.
// The protected set is fixed at construction and never mutated afterwards.
type Guard struct {
	protected map[string]Kind
}

// New creates a Guard protecting the given kinds.
func New(kinds []Kind) *Guard {
	protected := make(map[string]Kind, len(kinds))
	for _, k := range kinds {
		protected[string(k)] = k
	}
	return &Guard{protected: protected}
}

// Name implements gorm.Plugin.
func (g *Guard) Name() string { return pluginName }

// Initialize implements gorm.Plugin. It hooks in before gorm's update and
// delete processors so violations abort the statement before any SQL runs.
func (g *Guard) Initialize(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register(updateCallbackName, g.blockUpdate); err != nil {
		return fmt.Errorf("register update guard: %w", err)
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register(deleteCallbackName, g.blockDelete); err != nil {
		return fmt.Errorf("register delete guard: %w", err)
	}
	return nil
}

// Install attaches the guard to db. It must run once per process before any
// protected-kind write path becomes reachable. Re-installation is a no-op;
// the hook is never registered twice.
func Install(db *gorm.DB, kinds []Kind) error {
	if _, ok := db.Config.Plugins[pluginName]; ok {
		return nil
	}
	if err := db.Use(New(kinds)); err != nil {
		return fmt.Errorf("install immutability guard: %w", err)
	}
	return nil
}

// Installed reports whether the guard is already attached to db.
func Installed(db *gorm.DB) bool {
	_, ok := db.Config.Plugins[pluginName]
	return ok
}

func (g *Guard) blockUpdate(db *gorm.DB) {
	kind, ok := g.protected[db.Statement.Table]
	if !ok {
		return
	}
	_ = db.AddError(&ViolationError{
		Code:    CodeImmutableUpdate,
		Kind:    kind,
		Columns: changedColumns(db),
	})
}

func (g *Guard) blockDelete(db *gorm.DB) {
	kind, ok := g.protected[db.Statement.Table]
	if !ok {
		return
	}
	_ = db.AddError(&ViolationError{
		Code:    CodeImmutableDelete,
		Kind:    kind,
	})
}

// changedColumns names the attributes an Updates call tried to modify, when
// the caller passed a column map. Struct-based updates report no columns.
func changedColumns(db *gorm.DB) []string {
	dest, ok := db.Statement.Dest.(map[string]any)
	if !ok {
		return nil
	}
	columns := make([]string, 0, len(dest))
	for column := range dest {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
