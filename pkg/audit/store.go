// Package audit is the append-only, queryable, exportable ledger of the
// substrate. Every import, normalization, calculation, reporting, and
// workflow action lands here, linked back to the dataset version, run, and
// artifact it concerns. Entries are never updated or deleted through the
// ORM; the immutability guard protects the table.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store provides append-only operations over audit entries.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit_entries table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AuditEntryRecord{}); err != nil {
		return fmt.Errorf("auto-migrate audit_entries: %w", err)
	}
	return nil
}

// Append writes a new audit entry. A missing id is generated; a blank actor
// id is only tolerated for system entries, where it is replaced by the
// reserved sentinel.
func (s *Store) Append(entry *AuditEntryRecord) error {
	return appendWith(s.db, entry)
}

// AppendTx writes a new audit entry inside the caller's transaction, so the
// entry commits or rolls back with the action it records.
func (s *Store) AppendTx(tx *gorm.DB, entry *AuditEntryRecord) error {
	return appendWith(tx, entry)
}

func appendWith(db *gorm.DB, entry *AuditEntryRecord) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	kind := ActorKind(entry.ActorKind)
	if !kind.Valid() {
		return fmt.Errorf("append audit entry: unknown actor kind %q", entry.ActorKind)
	}
	if entry.ActorID == "" {
		if kind != ActorSystem {
			return fmt.Errorf("append audit entry: actor id is required for %s entries", kind)
		}
		entry.ActorID = SystemActorID
	}
	if !Outcome(entry.Outcome).Valid() {
		return fmt.Errorf("append audit entry: unknown outcome %q", entry.Outcome)
	}
	if entry.Category == "" {
		return fmt.Errorf("append audit entry: category is required")
	}
	if err := db.Create(entry).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Filter selects audit entries. Zero-valued fields are ignored, so any
// subset of the linking attributes plus a time range can be combined.
type Filter struct {
	DatasetVersionID string
	RunID            string
	ArtifactID       string
	Category         string
	ActorID          string
	Outcome          string
	Since            time.Time
	Until            time.Time
}

func (f Filter) apply(query *gorm.DB) *gorm.DB {
	if f.DatasetVersionID != "" {
		query = query.Where("dataset_version_id = ?", f.DatasetVersionID)
	}
	if f.RunID != "" {
		query = query.Where("run_id = ?", f.RunID)
	}
	if f.ArtifactID != "" {
		query = query.Where("artifact_id = ?", f.ArtifactID)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.ActorID != "" {
		query = query.Where("actor_id = ?", f.ActorID)
	}
	if f.Outcome != "" {
		query = query.Where("outcome = ?", f.Outcome)
	}
	if !f.Since.IsZero() {
		query = query.Where("created_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		query = query.Where("created_at <= ?", f.Until)
	}
	return query
}

// Query returns paginated audit entries matching the filter, ordered by
// (created_at, id) DESC (newest first). The id tiebreak keeps the order
// total when entries share a timestamp, which happens under millisecond
// column precision, caller-supplied timestamps, and single-transaction
// batches; without it a page boundary inside a tie would skip entries.
// pageToken encodes the (created_at, id) cursor of the last returned entry.
// The third return value is the total match count.
func (s *Store) Query(f Filter, pageSize int, pageToken string) ([]AuditEntryRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var totalSize int64
	if err := f.apply(s.db.Model(&AuditEntryRecord{})).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := f.apply(s.db.Model(&AuditEntryRecord{})).
		Order("created_at DESC, id DESC").
		Limit(pageSize + 1)
	if pageToken != "" {
		cursorTime, cursorID, err := decodePageToken(pageToken)
		if err != nil {
			return nil, "", 0, err
		}
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursorTime, cursorTime, cursorID,
		)
	}

	var records []AuditEntryRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("query audit entries: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		last := records[pageSize-1]
		nextToken = encodePageToken(last.CreatedAt, last.ID)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// encodePageToken packs a (created_at, id) cursor into an opaque token.
func encodePageToken(t time.Time, id string) string {
	return t.Format(time.RFC3339Nano) + "|" + id
}

func decodePageToken(token string) (time.Time, string, error) {
	timestamp, id, ok := strings.Cut(token, "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("invalid page token: missing cursor id")
	}
	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	return t, id, nil
}

// CountByOutcome returns the number of matching entries per outcome.
func (s *Store) CountByOutcome(f Filter) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		Total   int64
	}
	err := f.apply(s.db.Model(&AuditEntryRecord{})).
		Select("outcome, COUNT(*) AS total").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count audit entries by outcome: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Total
	}
	return counts, nil
}
