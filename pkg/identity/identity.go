// Package identity derives deterministic, content-addressed identifiers for
// substrate records. The same semantic key always yields the same identifier
// across runs, processes, and hosts, which is what makes the strict registry
// idempotent: a producer re-running identical work recomputes identical ids
// and lands on the rows it already wrote.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// EncodingVersion is baked into every hash input. Bumping it changes every
// derived identifier, so it only moves when the encoding itself changes.
const EncodingVersion = "v1"

// Record-type tags namespace the hash input so an evidence id and a finding
// id derived from the same four key parts can never collide.
const (
	tagEvidence = "evidence"
	tagFinding  = "finding"
	tagLink     = "finding-evidence-link"
)

// EvidenceID returns the identifier for an evidence record. stableKey must be
// deterministic given the source data (a source record id, a composite of
// business keys) — never wall-clock time, a random value, or iteration order.
func EvidenceID(datasetVersionID, engineID, kind, stableKey string) string {
	return derive(tagEvidence, datasetVersionID, engineID, kind, stableKey)
}

// FindingID returns the identifier for a finding record. Same stable-key
// rules as EvidenceID.
func FindingID(datasetVersionID, engineID, kind, stableKey string) string {
	return derive(tagFinding, datasetVersionID, engineID, kind, stableKey)
}

// LinkID returns the identifier for a finding-evidence link. linkKind
// disambiguates multiple links of different semantic roles between the same
// finding/evidence pair; pass "" when only one link role exists.
func LinkID(datasetVersionID, findingID, evidenceID, linkKind string) string {
	return derive(tagLink, datasetVersionID, findingID, evidenceID, linkKind)
}

// derive hashes the encoding version, the record-type tag, and each part as a
// length-prefixed byte string. Length prefixes make the encoding
// order-sensitive and unambiguous: ("ab","c") and ("a","bc") hash differently.
func derive(tag string, parts ...string) string {
	h := sha256.New()
	writePart(h.Write, EncodingVersion)
	writePart(h.Write, tag)
	for _, p := range parts {
		writePart(h.Write, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writePart(write func([]byte) (int, error), part string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(part)))
	_, _ = write(lenBuf[:])
	_, _ = write([]byte(part))
}
