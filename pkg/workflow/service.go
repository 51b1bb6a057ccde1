// Package workflow enforces the review lifecycle of the substrate: draft ->
// review -> approved -> locked, with review -> draft as the send-back path.
// Transition legality and prerequisites are checked against a closed rule
// table and against database state; every accepted and every rejected
// transition is recorded in the audit ledger.
package workflow

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/substratehq/lineage/pkg/audit"
	"github.com/substratehq/lineage/pkg/registry"
	"github.com/substratehq/lineage/pkg/sqltypes"
)

// Service coordinates workflow state rows, transition records, prerequisite
// checks, and audit entries.
type Service struct {
	db       *gorm.DB
	registry *registry.Store
	audit    *audit.Store
	machine  *Machine
	logger   *slog.Logger
}

// NewService creates a workflow service. logger may be nil, in which case
// slog.Default() is used.
func NewService(db *gorm.DB, registryStore *registry.Store, auditStore *audit.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		registry: registryStore,
		audit:    auditStore,
		machine:  NewMachine(),
		logger:   logger,
	}
}

// AutoMigrate creates or updates the workflow tables.
func (s *Service) AutoMigrate() error {
	if err := s.db.AutoMigrate(&WorkflowStateRecord{}); err != nil {
		return fmt.Errorf("auto-migrate workflow_states: %w", err)
	}
	if err := s.db.AutoMigrate(&WorkflowTransitionRecord{}); err != nil {
		return fmt.Errorf("auto-migrate workflow_transitions: %w", err)
	}
	return nil
}

// CreateOrGet returns the workflow state for a subject, creating it in draft
// on first touch. Retried first-touch calls from producers are tolerated:
// creating a state that already exists returns the existing one. actorKind
// classifies the creator in the ledger; blank means human.
func (s *Service) CreateOrGet(datasetVersionID, subjectType, subjectID, actorID string, actorKind audit.ActorKind) (*WorkflowStateRecord, error) {
	if subjectType == "" || subjectID == "" || actorID == "" {
		return nil, fmt.Errorf("create workflow state: subject type, subject id, and actor id are all required")
	}
	dv, err := s.registry.GetDatasetVersion(datasetVersionID)
	if err != nil {
		return nil, err
	}
	if dv == nil {
		return nil, &registry.NotFoundError{Code: registry.CodeDatasetVersionNotFound, ID: datasetVersionID}
	}

	existing, err := s.get(s.db, datasetVersionID, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	record := &WorkflowStateRecord{
		ID:               uuid.NewString(),
		DatasetVersionID: datasetVersionID,
		SubjectType:      subjectType,
		SubjectID:        subjectID,
		CurrentState:     string(StateDraft),
		CreatedBy:        actorID,
	}
	// A concurrent first touch serializes on the subject unique index; the
	// loser reloads the winner's row.
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		return nil, fmt.Errorf("create workflow state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.get(s.db, datasetVersionID, subjectType, subjectID)
	}

	s.appendAudit(&audit.AuditEntryRecord{
		DatasetVersionID: datasetVersionID,
		ActorID:          actorID,
		ActorKind:        actorKindOrHuman(actorKind),
		Category:         audit.CategoryWorkflow,
		Label:            "workflow state created",
		Outcome:          string(audit.OutcomeSuccess),
		Context: sqltypes.JSONMap{
			"subjectType": subjectType,
			"subjectId":   subjectID,
			"state":       string(StateDraft),
		},
	})
	return record, nil
}

// TransitionRequest carries everything needed to move a subject to a target
// state. ActorRoles is the caller-resolved role set of the actor; the
// service checks its shape, it does not authenticate. A blank ActorKind
// means human.
type TransitionRequest struct {
	DatasetVersionID string
	SubjectType      string
	SubjectID        string
	Target           State
	ActorID          string
	ActorKind        audit.ActorKind
	ActorRoles       []string
	Reason           string
	Metadata         sqltypes.JSONMap
}

// actorKindOrHuman resolves the ledger actor kind, defaulting to human for
// callers that do not classify themselves.
func actorKindOrHuman(kind audit.ActorKind) string {
	if kind == "" {
		return string(audit.ActorHuman)
	}
	return string(kind)
}

// Transition moves a subject to the target state. The load, validation,
// state update, and transition record all happen in one transaction; any
// validation failure leaves the state untouched. Both outcomes append
// exactly one audit entry, with rejections logged before the error
// propagates.
func (s *Service) Transition(req TransitionRequest) (*WorkflowStateRecord, error) {
	if req.SubjectType == "" || req.SubjectID == "" || req.ActorID == "" {
		return nil, fmt.Errorf("workflow transition: subject type, subject id, and actor id are all required")
	}
	// Unknown target states are not special-cased: no rule names them, so
	// they reject through the rule table and land in the ledger like any
	// other illegal pair.
	dv, err := s.registry.GetDatasetVersion(req.DatasetVersionID)
	if err != nil {
		return nil, err
	}
	if dv == nil {
		return nil, &registry.NotFoundError{Code: registry.CodeDatasetVersionNotFound, ID: req.DatasetVersionID}
	}

	var updated *WorkflowStateRecord
	var fromState State

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		state, err := s.lockSubject(tx, req)
		if err != nil {
			return err
		}
		fromState = State(state.CurrentState)

		rule, err := s.machine.Rule(fromState, req.Target)
		if err != nil {
			return err
		}
		if err := s.checkPrerequisites(rule, req); err != nil {
			return err
		}

		// The state-qualified WHERE is a second line of defense against a
		// lost update: if another transition slipped in, zero rows match.
		res := tx.Model(&WorkflowStateRecord{}).
			Where("id = ? AND current_state = ?", state.ID, string(fromState)).
			Updates(map[string]any{
				"current_state": string(req.Target),
				"updated_by":    req.ActorID,
			})
		if res.Error != nil {
			return fmt.Errorf("update workflow state: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("workflow transition: concurrent transition detected for subject %s/%s", req.SubjectType, req.SubjectID)
		}

		transition := &WorkflowTransitionRecord{
			ID:               uuid.NewString(),
			WorkflowStateID:  state.ID,
			DatasetVersionID: req.DatasetVersionID,
			FromState:        string(fromState),
			ToState:          string(req.Target),
			ActorID:          req.ActorID,
			ActorRoles:       sqltypes.JSONStringSlice(req.ActorRoles),
			Reason:           req.Reason,
			Metadata:         req.Metadata,
		}
		if err := tx.Create(transition).Error; err != nil {
			return fmt.Errorf("record workflow transition: %w", err)
		}

		if err := s.audit.AppendTx(tx, s.auditEntry(req, fromState, string(audit.OutcomeSuccess), "")); err != nil {
			return err
		}

		state.CurrentState = string(req.Target)
		state.UpdatedBy = req.ActorID
		updated = state
		return nil
	})
	if txErr != nil {
		if isWorkflowRejection(txErr) {
			s.appendAudit(s.auditEntry(req, fromState, string(audit.OutcomeFailure), txErr.Error()))
		}
		return nil, txErr
	}

	s.logger.Info("workflow transition",
		"datasetVersion", req.DatasetVersionID,
		"subjectType", req.SubjectType,
		"subjectId", req.SubjectID,
		"from", fromState,
		"to", req.Target,
		"actor", req.ActorID,
	)
	return updated, nil
}

// lockSubject loads the subject's state row under a row lock, creating the
// draft row on first touch. SQLite has no SELECT ... FOR UPDATE; its
// single-writer model already serializes the read-check-write sequence.
func (s *Service) lockSubject(tx *gorm.DB, req TransitionRequest) (*WorkflowStateRecord, error) {
	query := tx.Where(
		"dataset_version_id = ? AND subject_type = ? AND subject_id = ?",
		req.DatasetVersionID, req.SubjectType, req.SubjectID,
	)
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var state WorkflowStateRecord
	err := query.First(&state).Error
	if err == nil {
		return &state, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("load workflow state: %w", err)
	}

	record := &WorkflowStateRecord{
		ID:               uuid.NewString(),
		DatasetVersionID: req.DatasetVersionID,
		SubjectType:      req.SubjectType,
		SubjectID:        req.SubjectID,
		CurrentState:     string(StateDraft),
		CreatedBy:        req.ActorID,
	}
	if err := tx.Create(record).Error; err != nil {
		return nil, fmt.Errorf("create workflow state: %w", err)
	}
	return record, nil
}

func (s *Service) checkPrerequisites(rule *TransitionRule, req TransitionRequest) error {
	if rule.RequiresEvidence {
		linked, err := s.registry.HasLinkedEvidence(req.DatasetVersionID, req.SubjectType, req.SubjectID)
		if err != nil {
			return err
		}
		if !linked {
			return &MissingPrerequisiteError{
				Code:         CodeMissingPrerequisite,
				From:         rule.From,
				To:           rule.To,
				Prerequisite: PrerequisiteEvidenceLinked,
				Message:      fmt.Sprintf("transition %s -> %s requires evidence linked to subject %s/%s", rule.From, rule.To, req.SubjectType, req.SubjectID),
			}
		}
	}
	if rule.RequiresApprover && !HasApprovalAuthority(req.ActorRoles) {
		return &MissingPrerequisiteError{
			Code:         CodeMissingPrerequisite,
			From:         rule.From,
			To:           rule.To,
			Prerequisite: PrerequisiteApprovalAuthority,
			Message:      fmt.Sprintf("transition %s -> %s requires approval authority, actor %s has none", rule.From, rule.To, req.ActorID),
		}
	}
	return nil
}

// Get returns the workflow state for a subject.
// Returns nil, nil if the subject has never entered the workflow.
func (s *Service) Get(datasetVersionID, subjectType, subjectID string) (*WorkflowStateRecord, error) {
	return s.get(s.db, datasetVersionID, subjectType, subjectID)
}

func (s *Service) get(db *gorm.DB, datasetVersionID, subjectType, subjectID string) (*WorkflowStateRecord, error) {
	var state WorkflowStateRecord
	err := db.Where(
		"dataset_version_id = ? AND subject_type = ? AND subject_id = ?",
		datasetVersionID, subjectType, subjectID,
	).First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get workflow state: %w", err)
	}
	return &state, nil
}

// ListTransitions returns the transition history of a workflow state,
// oldest first.
func (s *Service) ListTransitions(workflowStateID string) ([]WorkflowTransitionRecord, error) {
	var records []WorkflowTransitionRecord
	err := s.db.Where("workflow_state_id = ?", workflowStateID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list workflow transitions: %w", err)
	}
	return records, nil
}

// auditEntry builds the ledger entry for a transition attempt. Run and
// report subjects additionally populate the run/artifact linkage columns.
func (s *Service) auditEntry(req TransitionRequest, from State, outcome, errorDetail string) *audit.AuditEntryRecord {
	entry := &audit.AuditEntryRecord{
		DatasetVersionID: req.DatasetVersionID,
		ActorID:          req.ActorID,
		ActorKind:        actorKindOrHuman(req.ActorKind),
		Category:         audit.CategoryWorkflow,
		Label:            "workflow transition",
		Reason:           req.Reason,
		Outcome:          outcome,
		ErrorDetail:      errorDetail,
		Metadata:         req.Metadata,
		Context: sqltypes.JSONMap{
			"subjectType": req.SubjectType,
			"subjectId":   req.SubjectID,
			"from":        string(from),
			"to":          string(req.Target),
		},
	}
	switch req.SubjectType {
	case SubjectRun:
		entry.RunID = req.SubjectID
	case SubjectReport:
		entry.ArtifactID = req.SubjectID
	}
	return entry
}

// appendAudit logs outside the failed transaction; a ledger write that
// itself fails is reported, not swallowed silently.
func (s *Service) appendAudit(entry *audit.AuditEntryRecord) {
	if err := s.audit.Append(entry); err != nil {
		s.logger.Error("append audit entry", "error", err)
	}
}

// isWorkflowRejection reports whether err is a validation rejection that
// must itself be recorded in the ledger before propagating.
func isWorkflowRejection(err error) bool {
	switch err.(type) {
	case *InvalidTransitionError, *MissingPrerequisiteError:
		return true
	}
	return false
}
