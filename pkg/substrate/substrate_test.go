package substrate_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/substratehq/lineage/pkg/audit"
	"github.com/substratehq/lineage/pkg/guard"
	"github.com/substratehq/lineage/pkg/registry"
	"github.com/substratehq/lineage/pkg/sqltypes"
	"github.com/substratehq/lineage/pkg/substrate"
	"github.com/substratehq/lineage/pkg/workflow"
)

func newSubstrate(t *testing.T) *substrate.Substrate {
	t.Helper()
	// Shared cache so every pooled connection sees the same in-memory
	// database; a per-test name keeps tests isolated.
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s, err := substrate.New(db, substrate.Config{})
	require.NoError(t, err)
	return s
}

func TestNew_InstallsGuard(t *testing.T) {
	s := newSubstrate(t)
	assert.True(t, guard.Installed(s.DB()))

	// A second assembly over the same handle is a no-op, not a double hook.
	again, err := substrate.New(s.DB(), substrate.Config{SkipMigration: true})
	require.NoError(t, err)
	assert.True(t, guard.Installed(again.DB()))
}

// End to end: ingest evidence, create a finding, link them, walk the finding
// to approved, and confirm every step is in the ledger and nothing is
// mutable.
func TestSubstrate_EndToEnd(t *testing.T) {
	s := newSubstrate(t)

	dv, err := s.Registry.CreateDatasetVersion()
	require.NoError(t, err)

	created := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	evidence, err := s.Registry.StrictCreateEvidence(registry.EvidenceInput{
		DatasetVersionID: dv.ID,
		EngineID:         "exposure-engine",
		Kind:             "calculation-trace",
		StableKey:        "policy-17",
		Payload:          sqltypes.JSONMap{"inputs": 4.0},
		CreatedAt:        created,
	})
	require.NoError(t, err)

	finding, err := s.Registry.StrictCreateFinding(registry.FindingInput{
		DatasetVersionID: dv.ID,
		EngineID:         "exposure-engine",
		Kind:             "over-exposure",
		StableKey:        "policy-17",
		Severity:         registry.SeverityCritical,
		Confidence:       registry.ConfidenceHigh,
		CreatedAt:        created,
	})
	require.NoError(t, err)

	_, err = s.Registry.StrictLink(dv.ID, finding.ID, evidence.ID, "supports")
	require.NoError(t, err)

	require.NoError(t, s.Audit.Append(&audit.AuditEntryRecord{
		DatasetVersionID: dv.ID,
		ActorKind:        string(audit.ActorSystem),
		Category:         audit.CategoryCalculation,
		Label:            "exposure run finished",
		Outcome:          string(audit.OutcomeSuccess),
	}))

	_, err = s.Workflow.Transition(workflow.TransitionRequest{
		DatasetVersionID: dv.ID,
		SubjectType:      workflow.SubjectFinding,
		SubjectID:        finding.ID,
		Target:           workflow.StateReview,
		ActorID:          "alice",
	})
	require.NoError(t, err)

	state, err := s.Workflow.Transition(workflow.TransitionRequest{
		DatasetVersionID: dv.ID,
		SubjectType:      workflow.SubjectFinding,
		SubjectID:        finding.ID,
		Target:           workflow.StateApproved,
		ActorID:          "carol",
		ActorRoles:       []string{workflow.RoleApprover},
	})
	require.NoError(t, err)
	assert.Equal(t, string(workflow.StateApproved), state.CurrentState)

	// Calculation entry plus two workflow transitions.
	_, _, total, err := s.Audit.Query(audit.Filter{DatasetVersionID: dv.ID}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	// The guard blocks mutation of everything just written.
	err = s.DB().Model(&registry.EvidenceRecord{}).
		Where("id = ?", evidence.ID).
		Updates(map[string]any{"engine_id": "tampered"}).Error
	var violation *guard.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, guard.CodeImmutableUpdate, violation.Code)

	err = s.DB().Where("id = ?", finding.ID).Delete(&registry.FindingRecord{}).Error
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, guard.CodeImmutableDelete, violation.Code)
}

func TestSubstrate_GuardCoversAuditAndTransitions(t *testing.T) {
	s := newSubstrate(t)

	dv, err := s.Registry.CreateDatasetVersion()
	require.NoError(t, err)

	entry := &audit.AuditEntryRecord{
		DatasetVersionID: dv.ID,
		ActorID:          "alice",
		ActorKind:        string(audit.ActorHuman),
		Category:         audit.CategoryImport,
		Outcome:          string(audit.OutcomeSuccess),
	}
	require.NoError(t, s.Audit.Append(entry))

	var violation *guard.ViolationError
	err = s.DB().Model(&audit.AuditEntryRecord{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{"outcome": string(audit.OutcomeFailure)}).Error
	require.ErrorAs(t, err, &violation)

	err = s.DB().Where("id = ?", entry.ID).Delete(&audit.AuditEntryRecord{}).Error
	require.ErrorAs(t, err, &violation)
}
