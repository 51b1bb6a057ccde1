// Package registry is the deterministic identity and strict-create layer of
// the substrate. Evidence, findings, and finding-evidence links carry
// content-addressed identifiers, and every create operation is idempotent
// with conflict detection: identical re-submission returns the existing row,
// any attribute mismatch under the same identifier is an error, never an
// overwrite.
package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/substratehq/lineage/pkg/identity"
	"github.com/substratehq/lineage/pkg/sqltypes"
)

// SubjectTypeFinding is the workflow subject type whose evidence
// reachability runs through the finding-evidence link table. Any other
// subject type (run, report) is checked by producing engine id.
const SubjectTypeFinding = "finding"

// Store provides append-only and strict-create operations over the lineage
// tables.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the lineage tables.
func (s *Store) AutoMigrate() error {
	for _, model := range []any{
		&DatasetVersionRecord{},
		&RawRecord{},
		&NormalizedRecord{},
		&EvidenceRecord{},
		&FindingRecord{},
		&FindingEvidenceLink{},
	} {
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate registry tables: %w", err)
		}
	}
	return nil
}

// CreateDatasetVersion mints a new dataset version. The id is a UUIDv7 so
// versions sort by creation time; the row is immutable from here on.
func (s *Store) CreateDatasetVersion() (*DatasetVersionRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate dataset version id: %w", err)
	}
	record := &DatasetVersionRecord{ID: id.String()}
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("create dataset version: %w", err)
	}
	return record, nil
}

// GetDatasetVersion retrieves a dataset version by id.
// Returns nil, nil if no record exists.
func (s *Store) GetDatasetVersion(id string) (*DatasetVersionRecord, error) {
	var record DatasetVersionRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get dataset version: %w", err)
	}
	return &record, nil
}

// requireDatasetVersion rejects references to nonexistent dataset versions
// before any write happens.
func (s *Store) requireDatasetVersion(id string) error {
	dv, err := s.GetDatasetVersion(id)
	if err != nil {
		return err
	}
	if dv == nil {
		return &NotFoundError{Code: CodeDatasetVersionNotFound, ID: id}
	}
	return nil
}

// CreateRawRecord appends an as-ingested source row to a dataset version.
// If id is empty a random one is generated.
func (s *Store) CreateRawRecord(datasetVersionID, id string, payload sqltypes.JSONMap) (*RawRecord, error) {
	if err := s.requireDatasetVersion(datasetVersionID); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	record := &RawRecord{ID: id, DatasetVersionID: datasetVersionID, Payload: payload}
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("create raw record: %w", err)
	}
	return record, nil
}

// CreateNormalizedRecord appends a normalized source row. rawRecordID is
// optional; when set it must name an existing raw record.
func (s *Store) CreateNormalizedRecord(datasetVersionID, id, rawRecordID string, payload sqltypes.JSONMap) (*NormalizedRecord, error) {
	if err := s.requireDatasetVersion(datasetVersionID); err != nil {
		return nil, err
	}
	if rawRecordID != "" {
		var count int64
		if err := s.db.Model(&RawRecord{}).Where("id = ?", rawRecordID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check raw record: %w", err)
		}
		if count == 0 {
			return nil, &NotFoundError{Code: CodeRawRecordNotFound, ID: rawRecordID}
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	record := &NormalizedRecord{
		ID:               id,
		DatasetVersionID: datasetVersionID,
		RawRecordID:      rawRecordID,
		Payload:          payload,
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("create normalized record: %w", err)
	}
	return record, nil
}

// EvidenceInput carries the semantic key and content of an evidence record.
// CreatedAt is caller-supplied, not generated internally, so replays are
// bit-identical; it is normalized to UTC microsecond precision before
// storage and comparison.
type EvidenceInput struct {
	DatasetVersionID string
	EngineID         string
	Kind             string
	StableKey        string
	Payload          sqltypes.JSONMap
	CreatedAt        time.Time
}

// StrictCreateEvidence inserts an evidence record under its deterministic
// identifier. If a record with that identifier already exists and every
// field matches, the existing record is returned (idempotent no-op). If any
// field differs, a *ConflictError naming the mismatched field is returned
// and the original row is left unchanged.
func (s *Store) StrictCreateEvidence(in EvidenceInput) (*EvidenceRecord, error) {
	if in.DatasetVersionID == "" || in.EngineID == "" || in.Kind == "" || in.StableKey == "" {
		return nil, fmt.Errorf("strict create evidence: dataset version, engine, kind, and stable key are all required")
	}
	if err := s.requireDatasetVersion(in.DatasetVersionID); err != nil {
		return nil, err
	}

	record := &EvidenceRecord{
		ID:               identity.EvidenceID(in.DatasetVersionID, in.EngineID, in.Kind, in.StableKey),
		DatasetVersionID: in.DatasetVersionID,
		EngineID:         in.EngineID,
		Kind:             in.Kind,
		StableKey:        in.StableKey,
		Payload:          in.Payload,
		CreatedAt:        normalizeTime(in.CreatedAt),
	}

	// Concurrent strict creates for the same identifier serialize on the
	// primary key: one row inserts, the loser sees RowsAffected == 0 and
	// falls through to the compare path.
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		return nil, fmt.Errorf("strict create evidence: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return record, nil
	}

	var existing EvidenceRecord
	if err := s.db.Where("id = ?", record.ID).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("load existing evidence: %w", err)
	}
	if conflict := compareEvidence(&existing, record); conflict != nil {
		return nil, conflict
	}
	return &existing, nil
}

func compareEvidence(existing, attempted *EvidenceRecord) *ConflictError {
	mismatch := func(code, field string) *ConflictError {
		return &ConflictError{
			Code:       code,
			Identifier: existing.ID,
			Field:      field,
			Message:    fmt.Sprintf("evidence %s already exists with a different %s", existing.ID, field),
		}
	}
	switch {
	case existing.DatasetVersionID != attempted.DatasetVersionID:
		return mismatch(CodeEvidenceDatasetVersionMismatch, "dataset version")
	case existing.EngineID != attempted.EngineID:
		return mismatch(CodeEvidenceEngineMismatch, "engine")
	case existing.Kind != attempted.Kind:
		return mismatch(CodeEvidenceKindMismatch, "kind")
	case !normalizeTime(existing.CreatedAt).Equal(attempted.CreatedAt):
		return mismatch(CodeEvidenceTimestampMismatch, "creation timestamp")
	case !existing.Payload.Equal(attempted.Payload):
		return mismatch(CodeEvidencePayloadMismatch, "payload")
	}
	return nil
}

// FindingInput carries the semantic key and content of a finding record.
type FindingInput struct {
	DatasetVersionID string
	EngineID         string
	Kind             string
	StableKey        string
	SourceRecordID   string
	Severity         Severity
	Confidence       Confidence
	Payload          sqltypes.JSONMap
	CreatedAt        time.Time
}

// StrictCreateFinding inserts a finding record under its deterministic
// identifier, with the same idempotent-or-conflict contract as
// StrictCreateEvidence.
func (s *Store) StrictCreateFinding(in FindingInput) (*FindingRecord, error) {
	if in.DatasetVersionID == "" || in.EngineID == "" || in.Kind == "" || in.StableKey == "" {
		return nil, fmt.Errorf("strict create finding: dataset version, engine, kind, and stable key are all required")
	}
	if !in.Severity.Valid() {
		return nil, fmt.Errorf("strict create finding: unknown severity %q", in.Severity)
	}
	if !in.Confidence.Valid() {
		return nil, fmt.Errorf("strict create finding: unknown confidence %q", in.Confidence)
	}
	if err := s.requireDatasetVersion(in.DatasetVersionID); err != nil {
		return nil, err
	}

	record := &FindingRecord{
		ID:               identity.FindingID(in.DatasetVersionID, in.EngineID, in.Kind, in.StableKey),
		DatasetVersionID: in.DatasetVersionID,
		EngineID:         in.EngineID,
		Kind:             in.Kind,
		StableKey:        in.StableKey,
		SourceRecordID:   in.SourceRecordID,
		Severity:         string(in.Severity),
		Confidence:       string(in.Confidence),
		Payload:          in.Payload,
		CreatedAt:        normalizeTime(in.CreatedAt),
	}

	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		return nil, fmt.Errorf("strict create finding: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return record, nil
	}

	var existing FindingRecord
	if err := s.db.Where("id = ?", record.ID).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("load existing finding: %w", err)
	}
	if conflict := compareFinding(&existing, record); conflict != nil {
		return nil, conflict
	}
	return &existing, nil
}

func compareFinding(existing, attempted *FindingRecord) *ConflictError {
	mismatch := func(code, field string) *ConflictError {
		return &ConflictError{
			Code:       code,
			Identifier: existing.ID,
			Field:      field,
			Message:    fmt.Sprintf("finding %s already exists with a different %s", existing.ID, field),
		}
	}
	switch {
	case existing.DatasetVersionID != attempted.DatasetVersionID:
		return mismatch(CodeFindingDatasetVersionMismatch, "dataset version")
	case existing.EngineID != attempted.EngineID:
		return mismatch(CodeFindingEngineMismatch, "engine")
	case existing.Kind != attempted.Kind:
		return mismatch(CodeFindingKindMismatch, "kind")
	case existing.SourceRecordID != attempted.SourceRecordID:
		return mismatch(CodeFindingSourceMismatch, "source record")
	case existing.Severity != attempted.Severity:
		return mismatch(CodeFindingSeverityMismatch, "severity")
	case existing.Confidence != attempted.Confidence:
		return mismatch(CodeFindingConfidenceMismatch, "confidence")
	case !normalizeTime(existing.CreatedAt).Equal(attempted.CreatedAt):
		return mismatch(CodeFindingTimestampMismatch, "creation timestamp")
	case !existing.Payload.Equal(attempted.Payload):
		return mismatch(CodeFindingPayloadMismatch, "payload")
	}
	return nil
}

// StrictLink ties a finding to a piece of evidence under a deterministic
// link identifier. Both ends must already exist within the dataset version.
// Re-linking the same pair with the same kind returns the existing link.
func (s *Store) StrictLink(datasetVersionID, findingID, evidenceID, linkKind string) (*FindingEvidenceLink, error) {
	if err := s.requireDatasetVersion(datasetVersionID); err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.Model(&FindingRecord{}).
		Where("id = ? AND dataset_version_id = ?", findingID, datasetVersionID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check finding: %w", err)
	}
	if count == 0 {
		return nil, &NotFoundError{Code: CodeFindingNotFound, ID: findingID}
	}
	if err := s.db.Model(&EvidenceRecord{}).
		Where("id = ? AND dataset_version_id = ?", evidenceID, datasetVersionID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check evidence: %w", err)
	}
	if count == 0 {
		return nil, &NotFoundError{Code: CodeEvidenceNotFound, ID: evidenceID}
	}

	record := &FindingEvidenceLink{
		ID:               identity.LinkID(datasetVersionID, findingID, evidenceID, linkKind),
		DatasetVersionID: datasetVersionID,
		FindingID:        findingID,
		EvidenceID:       evidenceID,
		LinkKind:         linkKind,
	}

	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		return nil, fmt.Errorf("strict link: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return record, nil
	}

	var existing FindingEvidenceLink
	if err := s.db.Where("id = ?", record.ID).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("load existing link: %w", err)
	}
	if existing.DatasetVersionID != record.DatasetVersionID ||
		existing.FindingID != record.FindingID ||
		existing.EvidenceID != record.EvidenceID ||
		existing.LinkKind != record.LinkKind {
		return nil, &ConflictError{
			Code:       CodeLinkComponentMismatch,
			Identifier: existing.ID,
			Field:      "link components",
			Message:    fmt.Sprintf("link %s already exists with different components", existing.ID),
		}
	}
	return &existing, nil
}

// GetEvidence retrieves an evidence record by id.
// Returns nil, nil if no record exists.
func (s *Store) GetEvidence(id string) (*EvidenceRecord, error) {
	var record EvidenceRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get evidence: %w", err)
	}
	return &record, nil
}

// GetFinding retrieves a finding record by id.
// Returns nil, nil if no record exists.
func (s *Store) GetFinding(id string) (*FindingRecord, error) {
	var record FindingRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get finding: %w", err)
	}
	return &record, nil
}

// ListFindings returns paginated findings for a dataset version, ordered by
// id ASC. pageToken is the id of the last record from the previous page;
// pass "" for the first page.
func (s *Store) ListFindings(datasetVersionID string, pageSize int, pageToken string) ([]FindingRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Where("dataset_version_id = ?", datasetVersionID).Order("id ASC").Limit(pageSize + 1)
	if pageToken != "" {
		query = query.Where("id > ?", pageToken)
	}

	var records []FindingRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list findings: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].ID
		records = records[:pageSize]
	}

	return records, nextToken, nil
}

// HasLinkedEvidence reports whether at least one evidence record is
// reachable from the given workflow subject. Reachability is derived from
// database state only, never accepted as a caller-supplied boolean.
//
// Finding subjects resolve through the finding-evidence link table. Any
// other subject type (calculation run, report) resolves by producing engine:
// the subject id names the engine whose evidence must exist in the dataset
// version.
func (s *Store) HasLinkedEvidence(datasetVersionID, subjectType, subjectID string) (bool, error) {
	var count int64
	if subjectType == SubjectTypeFinding {
		err := s.db.Model(&FindingEvidenceLink{}).
			Where("dataset_version_id = ? AND finding_id = ?", datasetVersionID, subjectID).
			Count(&count).Error
		if err != nil {
			return false, fmt.Errorf("check linked evidence: %w", err)
		}
		return count > 0, nil
	}
	err := s.db.Model(&EvidenceRecord{}).
		Where("dataset_version_id = ? AND engine_id = ?", datasetVersionID, subjectID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check linked evidence: %w", err)
	}
	return count > 0, nil
}

// normalizeTime pins timestamps to UTC microsecond precision so a value
// survives a round trip through any supported database and still compares
// equal on replay.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
