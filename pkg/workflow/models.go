package workflow

import (
	"time"

	"github.com/substratehq/lineage/pkg/sqltypes"
)

// WorkflowStateRecord holds the current lifecycle state of one subject
// within one dataset version. Exactly one row exists per (dataset_version,
// subject_type, subject_id); it is created in draft, mutated only through
// validated transitions, and never deleted.
type WorkflowStateRecord struct {
	ID               string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	DatasetVersionID string    `gorm:"column:dataset_version_id;uniqueIndex:idx_workflow_subject,priority:1;not null"`
	SubjectType      string    `gorm:"column:subject_type;uniqueIndex:idx_workflow_subject,priority:2;not null"`
	SubjectID        string    `gorm:"column:subject_id;uniqueIndex:idx_workflow_subject,priority:3;not null"`
	CurrentState     string    `gorm:"column:current_state;default:draft;not null"`
	CreatedBy        string    `gorm:"column:created_by;not null"`
	UpdatedBy        string    `gorm:"column:updated_by"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (WorkflowStateRecord) TableName() string { return "workflow_states" }

// WorkflowTransitionRecord is the append-only log of every state change.
// Created exactly once per transition, never mutated; the immutability
// guard protects the table.
type WorkflowTransitionRecord struct {
	ID               string                   `gorm:"primaryKey;column:id;type:varchar(36)"`
	WorkflowStateID  string                   `gorm:"column:workflow_state_id;index;not null"`
	DatasetVersionID string                   `gorm:"column:dataset_version_id;index;not null"`
	FromState        string                   `gorm:"column:from_state;not null"`
	ToState          string                   `gorm:"column:to_state;not null"`
	ActorID          string                   `gorm:"column:actor_id;not null"`
	ActorRoles       sqltypes.JSONStringSlice `gorm:"column:actor_roles;type:text"`
	Reason           string                   `gorm:"column:reason"`
	Metadata         sqltypes.JSONMap         `gorm:"column:metadata;type:text"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (WorkflowTransitionRecord) TableName() string { return "workflow_transitions" }
