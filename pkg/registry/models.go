package registry

import (
	"time"

	"github.com/substratehq/lineage/pkg/sqltypes"
)

// DatasetVersionRecord is the root of provenance: one row per ingestion
// event, never updated or deleted through the live system. The id is a
// UUIDv7, so ids sort by creation time.
type DatasetVersionRecord struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (DatasetVersionRecord) TableName() string { return "dataset_versions" }

// RawRecord is an as-ingested source row. Append-only; superseded, never
// edited.
type RawRecord struct {
	ID               string           `gorm:"primaryKey;column:id;type:varchar(64)"`
	DatasetVersionID string           `gorm:"column:dataset_version_id;index;not null"`
	Payload          sqltypes.JSONMap `gorm:"column:payload;type:text"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (RawRecord) TableName() string { return "raw_records" }

// NormalizedRecord is a normalized source row. A re-normalization writes a
// new row rather than editing the old one.
type NormalizedRecord struct {
	ID               string           `gorm:"primaryKey;column:id;type:varchar(64)"`
	DatasetVersionID string           `gorm:"column:dataset_version_id;index;not null"`
	RawRecordID      string           `gorm:"column:raw_record_id;index"`
	Payload          sqltypes.JSONMap `gorm:"column:payload;type:text"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (NormalizedRecord) TableName() string { return "normalized_records" }

// EvidenceRecord is an immutable piece of evidence produced by an engine.
// The id is a pure function of (dataset_version_id, engine_id, kind,
// stable_key); CreatedAt is caller-supplied so replays are bit-identical.
type EvidenceRecord struct {
	ID               string           `gorm:"primaryKey;column:id;type:varchar(64)"`
	DatasetVersionID string           `gorm:"column:dataset_version_id;index:idx_evidence_dv_engine,priority:1;not null"`
	EngineID         string           `gorm:"column:engine_id;index:idx_evidence_dv_engine,priority:2;not null"`
	Kind             string           `gorm:"column:kind;not null"`
	StableKey        string           `gorm:"column:stable_key;not null"`
	Payload          sqltypes.JSONMap `gorm:"column:payload;type:text"`
	CreatedAt        time.Time        `gorm:"column:created_at;not null"`
}

// TableName returns the GORM table name.
func (EvidenceRecord) TableName() string { return "evidence_records" }

// Severity classifies a finding. Closed enumeration, never free text.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Confidence classifies how certain a producer is about a finding.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is a known confidence level.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// FindingRecord is an immutable finding produced by an engine. Dismissal or
// acceptance is recorded as a separate review action, never as a change to
// the finding itself.
type FindingRecord struct {
	ID               string           `gorm:"primaryKey;column:id;type:varchar(64)"`
	DatasetVersionID string           `gorm:"column:dataset_version_id;index:idx_finding_dv_engine,priority:1;not null"`
	EngineID         string           `gorm:"column:engine_id;index:idx_finding_dv_engine,priority:2;not null"`
	Kind             string           `gorm:"column:kind;not null"`
	StableKey        string           `gorm:"column:stable_key;not null"`
	SourceRecordID   string           `gorm:"column:source_record_id;index"`
	Severity         string           `gorm:"column:severity;not null"`
	Confidence       string           `gorm:"column:confidence;not null"`
	Payload          sqltypes.JSONMap `gorm:"column:payload;type:text"`
	CreatedAt        time.Time        `gorm:"column:created_at;not null"`
}

// TableName returns the GORM table name.
func (FindingRecord) TableName() string { return "finding_records" }

// FindingEvidenceLink ties a finding to a piece of evidence. The id is a
// pure function of (dataset_version_id, finding_id, evidence_id, link_kind).
type FindingEvidenceLink struct {
	ID               string    `gorm:"primaryKey;column:id;type:varchar(64)"`
	DatasetVersionID string    `gorm:"column:dataset_version_id;index;not null"`
	FindingID        string    `gorm:"column:finding_id;index;not null"`
	EvidenceID       string    `gorm:"column:evidence_id;index;not null"`
	LinkKind         string    `gorm:"column:link_kind"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (FindingEvidenceLink) TableName() string { return "finding_evidence_links" }
