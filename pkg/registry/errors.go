package registry

import "fmt"

// Conflict codes name the first field found to differ under an existing
// identifier. The registry never silently picks a winner.
const (
	CodeEvidenceDatasetVersionMismatch = "EVIDENCE_DATASET_VERSION_MISMATCH"
	CodeEvidenceEngineMismatch         = "EVIDENCE_ENGINE_MISMATCH"
	CodeEvidenceKindMismatch           = "EVIDENCE_KIND_MISMATCH"
	CodeEvidencePayloadMismatch        = "EVIDENCE_PAYLOAD_MISMATCH"
	CodeEvidenceTimestampMismatch      = "EVIDENCE_TIMESTAMP_MISMATCH"

	CodeFindingDatasetVersionMismatch = "FINDING_DATASET_VERSION_MISMATCH"
	CodeFindingEngineMismatch         = "FINDING_ENGINE_MISMATCH"
	CodeFindingKindMismatch           = "FINDING_KIND_MISMATCH"
	CodeFindingSourceMismatch         = "FINDING_SOURCE_RECORD_MISMATCH"
	CodeFindingSeverityMismatch       = "FINDING_SEVERITY_MISMATCH"
	CodeFindingConfidenceMismatch     = "FINDING_CONFIDENCE_MISMATCH"
	CodeFindingPayloadMismatch        = "FINDING_PAYLOAD_MISMATCH"
	CodeFindingTimestampMismatch      = "FINDING_TIMESTAMP_MISMATCH"

	CodeLinkComponentMismatch = "LINK_COMPONENT_MISMATCH"
)

// ConflictError reports a strict-create collision: a record already exists
// under the same identifier with at least one differing field.
type ConflictError struct {
	Code       string `json:"code"`
	Identifier string `json:"identifier"`
	Field      string `json:"field"`
	Message    string `json:"message"`
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Not-found codes for referential checks performed before any write.
const (
	CodeDatasetVersionNotFound = "DATASET_VERSION_NOT_FOUND"
	CodeFindingNotFound        = "FINDING_NOT_FOUND"
	CodeEvidenceNotFound       = "EVIDENCE_NOT_FOUND"
	CodeRawRecordNotFound      = "RAW_RECORD_NOT_FOUND"
)

// NotFoundError reports a reference to a record that does not exist. Raised
// before any write, so the registry never accumulates orphaned rows.
type NotFoundError struct {
	Code string `json:"code"`
	ID   string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", e.Code, e.ID)
}
