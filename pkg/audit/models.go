package audit

import (
	"time"

	"github.com/substratehq/lineage/pkg/sqltypes"
)

// ActorKind classifies who performed an action.
type ActorKind string

const (
	ActorHuman      ActorKind = "human"
	ActorSystem     ActorKind = "system"
	ActorAutomation ActorKind = "automation"
)

// Valid reports whether k is a known actor kind.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorHuman, ActorSystem, ActorAutomation:
		return true
	}
	return false
}

// SystemActorID is the reserved sentinel actor id for system-originated
// entries. No entry is ever logged without an actor.
const SystemActorID = "system"

// Outcome records how an action ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeWarning Outcome = "warning"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeWarning:
		return true
	}
	return false
}

// Action categories for the substrate's producers and the workflow machine.
const (
	CategoryImport        = "import"
	CategoryNormalization = "normalization"
	CategoryCalculation   = "calculation"
	CategoryReporting     = "reporting"
	CategoryWorkflow      = "workflow"
	CategoryRegistry      = "registry"
)

// AuditEntryRecord is one immutable entry in the audit ledger. Linkage
// columns are optional: an entry may concern a dataset version, a run, an
// artifact, any combination, or none.
type AuditEntryRecord struct {
	ID               string           `gorm:"primaryKey;column:id;type:varchar(36)"`
	DatasetVersionID string           `gorm:"column:dataset_version_id;index:idx_audit_dv_time,priority:1"`
	RunID            string           `gorm:"column:run_id;index:idx_audit_run_time,priority:1"`
	ArtifactID       string           `gorm:"column:artifact_id;index:idx_audit_artifact_time,priority:1"`
	ActorID          string           `gorm:"column:actor_id;index:idx_audit_actor_time,priority:1;not null"`
	ActorKind        string           `gorm:"column:actor_kind;not null"`
	Category         string           `gorm:"column:category;index:idx_audit_category_time,priority:1;not null"`
	Label            string           `gorm:"column:label"`
	Reason           string           `gorm:"column:reason"`
	Context          sqltypes.JSONMap `gorm:"column:context;type:text"`
	Metadata         sqltypes.JSONMap `gorm:"column:metadata;type:text"`
	Outcome          string           `gorm:"column:outcome;not null"`
	ErrorDetail      string           `gorm:"column:error_detail"`
	CreatedAt        time.Time        `gorm:"column:created_at;index:idx_audit_dv_time,priority:2;index:idx_audit_run_time,priority:2;index:idx_audit_artifact_time,priority:2;index:idx_audit_actor_time,priority:2;index:idx_audit_category_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (AuditEntryRecord) TableName() string { return "audit_entries" }
