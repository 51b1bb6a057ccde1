package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// exportPageSize is the number of entries fetched per round trip while
// streaming an export.
const exportPageSize = 100

// csvHeader is the fixed column order of the tabular export.
var csvHeader = []string{
	"id", "created_at", "dataset_version_id", "run_id", "artifact_id",
	"actor_id", "actor_kind", "category", "label", "outcome", "reason",
	"error_detail", "context", "metadata",
}

// ExportCSV streams matching entries to w as CSV, newest first. The export
// reads pages through the same query path as Query and never mutates the
// underlying log.
func (s *Store) ExportCSV(w io.Writer, f Filter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	err := s.forEach(f, func(entry *AuditEntryRecord) error {
		contextJSON, err := marshalColumn(entry.Context)
		if err != nil {
			return err
		}
		metadataJSON, err := marshalColumn(entry.Metadata)
		if err != nil {
			return err
		}
		return cw.Write([]string{
			entry.ID,
			entry.CreatedAt.Format(time.RFC3339Nano),
			entry.DatasetVersionID,
			entry.RunID,
			entry.ArtifactID,
			entry.ActorID,
			entry.ActorKind,
			entry.Category,
			entry.Label,
			entry.Outcome,
			entry.Reason,
			entry.ErrorDetail,
			contextJSON,
			metadataJSON,
		})
	})
	if err != nil {
		return err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv export: %w", err)
	}
	return nil
}

// exportedEntry is the structured-record export shape: one JSON object per
// line, with linkage fields omitted when unset.
type exportedEntry struct {
	ID               string         `json:"id"`
	CreatedAt        string         `json:"createdAt"`
	DatasetVersionID string         `json:"datasetVersionId,omitempty"`
	RunID            string         `json:"runId,omitempty"`
	ArtifactID       string         `json:"artifactId,omitempty"`
	ActorID          string         `json:"actorId"`
	ActorKind        string         `json:"actorKind"`
	Category         string         `json:"category"`
	Label            string         `json:"label,omitempty"`
	Outcome          string         `json:"outcome"`
	Reason           string         `json:"reason,omitempty"`
	ErrorDetail      string         `json:"errorDetail,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ExportNDJSON streams matching entries to w as newline-delimited JSON,
// newest first.
func (s *Store) ExportNDJSON(w io.Writer, f Filter) error {
	enc := json.NewEncoder(w)
	return s.forEach(f, func(entry *AuditEntryRecord) error {
		out := exportedEntry{
			ID:               entry.ID,
			CreatedAt:        entry.CreatedAt.Format(time.RFC3339Nano),
			DatasetVersionID: entry.DatasetVersionID,
			RunID:            entry.RunID,
			ArtifactID:       entry.ArtifactID,
			ActorID:          entry.ActorID,
			ActorKind:        entry.ActorKind,
			Category:         entry.Category,
			Label:            entry.Label,
			Outcome:          entry.Outcome,
			Reason:           entry.Reason,
			ErrorDetail:      entry.ErrorDetail,
			Context:          entry.Context,
			Metadata:         entry.Metadata,
		}
		if err := enc.Encode(&out); err != nil {
			return fmt.Errorf("encode audit entry %s: %w", entry.ID, err)
		}
		return nil
	})
}

// forEach pages through matching entries newest-first and calls fn once per
// entry.
func (s *Store) forEach(f Filter, fn func(*AuditEntryRecord) error) error {
	pageToken := ""
	for {
		records, nextToken, _, err := s.Query(f, exportPageSize, pageToken)
		if err != nil {
			return err
		}
		for i := range records {
			if err := fn(&records[i]); err != nil {
				return err
			}
		}
		if nextToken == "" {
			return nil
		}
		pageToken = nextToken
	}
}

func marshalColumn(m map[string]any) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}
