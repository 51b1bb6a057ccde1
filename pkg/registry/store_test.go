package registry

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/substratehq/lineage/pkg/sqltypes"
)

// newTestDB creates an in-memory SQLite DB with lineage tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(newTestDB(t))
}

func TestCreateDatasetVersion(t *testing.T) {
	store := newTestStore(t)

	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)
	require.NotNil(t, dv)
	assert.NotEmpty(t, dv.ID)

	got, err := store.GetDatasetVersion(dv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, dv.ID, got.ID)

	// UUIDv7 ids sort by creation time.
	dv2, err := store.CreateDatasetVersion()
	require.NoError(t, err)
	assert.Greater(t, dv2.ID, dv.ID)
}

func TestGetDatasetVersion_NotFound(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetDatasetVersion("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStrictCreateEvidence_Idempotent(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := EvidenceInput{
		DatasetVersionID: dv.ID,
		EngineID:         "engineA",
		Kind:             "loss_exposure",
		StableKey:        "claim-7",
		Payload:          sqltypes.JSONMap{"amount": 100},
		CreatedAt:        t0,
	}

	first, err := store.StrictCreateEvidence(in)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := store.StrictCreateEvidence(in)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	// Exactly one row.
	var count int64
	require.NoError(t, store.db.Model(&EvidenceRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStrictCreateEvidence_PayloadConflict(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := EvidenceInput{
		DatasetVersionID: dv.ID,
		EngineID:         "engineA",
		Kind:             "loss_exposure",
		StableKey:        "claim-7",
		Payload:          sqltypes.JSONMap{"amount": 100},
		CreatedAt:        t0,
	}
	original, err := store.StrictCreateEvidence(in)
	require.NoError(t, err)

	in.Payload = sqltypes.JSONMap{"amount": 200}
	_, err = store.StrictCreateEvidence(in)
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, CodeEvidencePayloadMismatch, conflict.Code)
	assert.Equal(t, original.ID, conflict.Identifier)

	// Original row untouched.
	got, err := store.GetEvidence(original.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Payload.Equal(sqltypes.JSONMap{"amount": 100}))
}

func TestStrictCreateEvidence_TimestampConflict(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	in := EvidenceInput{
		DatasetVersionID: dv.ID,
		EngineID:         "engineA",
		Kind:             "loss_exposure",
		StableKey:        "claim-7",
		Payload:          sqltypes.JSONMap{"amount": 100},
		CreatedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	_, err = store.StrictCreateEvidence(in)
	require.NoError(t, err)

	in.CreatedAt = in.CreatedAt.Add(time.Second)
	_, err = store.StrictCreateEvidence(in)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, CodeEvidenceTimestampMismatch, conflict.Code)
}

func TestStrictCreateEvidence_DatasetVersionRequired(t *testing.T) {
	store := newTestStore(t)

	_, err := store.StrictCreateEvidence(EvidenceInput{
		DatasetVersionID: "missing-dv",
		EngineID:         "engineA",
		Kind:             "loss_exposure",
		StableKey:        "claim-7",
		CreatedAt:        time.Now(),
	})
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, CodeDatasetVersionNotFound, notFound.Code)

	// No orphan rows.
	var count int64
	require.NoError(t, store.db.Model(&EvidenceRecord{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestStrictCreateEvidence_MissingKeyParts(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	_, err = store.StrictCreateEvidence(EvidenceInput{
		DatasetVersionID: dv.ID,
		EngineID:         "",
		Kind:             "loss_exposure",
		StableKey:        "claim-7",
		CreatedAt:        time.Now(),
	})
	require.Error(t, err)
}

func TestStrictCreateFinding_IdempotentAndConflict(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	raw, err := store.CreateRawRecord(dv.ID, "", sqltypes.JSONMap{"row": 1})
	require.NoError(t, err)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := FindingInput{
		DatasetVersionID: dv.ID,
		EngineID:         "engineA",
		Kind:             "leakage",
		StableKey:        "claim-7",
		SourceRecordID:   raw.ID,
		Severity:         SeverityHigh,
		Confidence:       ConfidenceMedium,
		Payload:          sqltypes.JSONMap{"delta": 42.5},
		CreatedAt:        t0,
	}

	first, err := store.StrictCreateFinding(in)
	require.NoError(t, err)

	second, err := store.StrictCreateFinding(in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, store.db.Model(&FindingRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Severity mismatch under the same identifier is a conflict.
	in.Severity = SeverityCritical
	_, err = store.StrictCreateFinding(in)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, CodeFindingSeverityMismatch, conflict.Code)
}

func TestStrictCreateFinding_EnumValidation(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	in := FindingInput{
		DatasetVersionID: dv.ID,
		EngineID:         "engineA",
		Kind:             "leakage",
		StableKey:        "claim-7",
		Severity:         Severity("catastrophic"),
		Confidence:       ConfidenceHigh,
		CreatedAt:        time.Now(),
	}
	_, err = store.StrictCreateFinding(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "severity")

	in.Severity = SeverityLow
	in.Confidence = Confidence("absolute")
	_, err = store.StrictCreateFinding(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence")
}

func TestStrictLink(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	t0 := time.Now()
	evidence, err := store.StrictCreateEvidence(EvidenceInput{
		DatasetVersionID: dv.ID,
		EngineID:         "engineA",
		Kind:             "loss_exposure",
		StableKey:        "claim-7",
		CreatedAt:        t0,
	})
	require.NoError(t, err)

	finding, err := store.StrictCreateFinding(FindingInput{
		DatasetVersionID: dv.ID,
		EngineID:         "engineA",
		Kind:             "leakage",
		StableKey:        "claim-7",
		Severity:         SeverityHigh,
		Confidence:       ConfidenceHigh,
		CreatedAt:        t0,
	})
	require.NoError(t, err)

	link, err := store.StrictLink(dv.ID, finding.ID, evidence.ID, "supporting")
	require.NoError(t, err)
	require.NotNil(t, link)

	// Idempotent re-link.
	again, err := store.StrictLink(dv.ID, finding.ID, evidence.ID, "supporting")
	require.NoError(t, err)
	assert.Equal(t, link.ID, again.ID)

	var count int64
	require.NoError(t, store.db.Model(&FindingEvidenceLink{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// A different link kind is a distinct link.
	other, err := store.StrictLink(dv.ID, finding.ID, evidence.ID, "contradicting")
	require.NoError(t, err)
	assert.NotEqual(t, link.ID, other.ID)
}

func TestStrictLink_MissingEnds(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	_, err = store.StrictLink(dv.ID, "no-such-finding", "no-such-evidence", "")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, CodeFindingNotFound, notFound.Code)
}

func TestHasLinkedEvidence(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	t0 := time.Now()
	evidence, err := store.StrictCreateEvidence(EvidenceInput{
		DatasetVersionID: dv.ID,
		EngineID:         "run-42",
		Kind:             "loss_exposure",
		StableKey:        "claim-7",
		CreatedAt:        t0,
	})
	require.NoError(t, err)

	finding, err := store.StrictCreateFinding(FindingInput{
		DatasetVersionID: dv.ID,
		EngineID:         "run-42",
		Kind:             "leakage",
		StableKey:        "claim-7",
		Severity:         SeverityHigh,
		Confidence:       ConfidenceHigh,
		CreatedAt:        t0,
	})
	require.NoError(t, err)

	// Unlinked finding: not reachable.
	linked, err := store.HasLinkedEvidence(dv.ID, SubjectTypeFinding, finding.ID)
	require.NoError(t, err)
	assert.False(t, linked)

	_, err = store.StrictLink(dv.ID, finding.ID, evidence.ID, "")
	require.NoError(t, err)

	linked, err = store.HasLinkedEvidence(dv.ID, SubjectTypeFinding, finding.ID)
	require.NoError(t, err)
	assert.True(t, linked)

	// Run subjects resolve by producing engine id.
	linked, err = store.HasLinkedEvidence(dv.ID, "run", "run-42")
	require.NoError(t, err)
	assert.True(t, linked)

	linked, err = store.HasLinkedEvidence(dv.ID, "run", "run-99")
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestCreateNormalizedRecord(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	raw, err := store.CreateRawRecord(dv.ID, "raw-1", sqltypes.JSONMap{"cell": "a"})
	require.NoError(t, err)
	assert.Equal(t, "raw-1", raw.ID)

	norm, err := store.CreateNormalizedRecord(dv.ID, "", raw.ID, sqltypes.JSONMap{"cell": "A"})
	require.NoError(t, err)
	assert.Equal(t, raw.ID, norm.RawRecordID)

	// Missing raw record reference is rejected before any write.
	_, err = store.CreateNormalizedRecord(dv.ID, "", "no-such-raw", nil)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, CodeRawRecordNotFound, notFound.Code)
}

func TestListFindings_Pagination(t *testing.T) {
	store := newTestStore(t)
	dv, err := store.CreateDatasetVersion()
	require.NoError(t, err)

	t0 := time.Now()
	for i := 0; i < 5; i++ {
		_, err := store.StrictCreateFinding(FindingInput{
			DatasetVersionID: dv.ID,
			EngineID:         "engineA",
			Kind:             "leakage",
			StableKey:        fmt.Sprintf("claim-%d", i),
			Severity:         SeverityLow,
			Confidence:       ConfidenceLow,
			CreatedAt:        t0,
		})
		require.NoError(t, err)
	}

	page1, token1, err := store.ListFindings(dv.ID, 2, "")
	require.NoError(t, err)
	assert.Len(t, page1, 2)
	assert.NotEmpty(t, token1)

	page2, token2, err := store.ListFindings(dv.ID, 2, token1)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
	assert.NotEmpty(t, token2)

	page3, token3, err := store.ListFindings(dv.ID, 2, token2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
	assert.Empty(t, token3)
}
