package identity

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceID_Deterministic(t *testing.T) {
	a := EvidenceID("dv-1", "engineA", "loss_exposure", "claim-7")
	b := EvidenceID("dv-1", "engineA", "loss_exposure", "claim-7")
	assert.Equal(t, a, b, "same inputs must yield the same identifier")

	// 64 hex chars (sha256).
	require.Len(t, a, 64)
	_, err := hex.DecodeString(a)
	require.NoError(t, err)
}

func TestEvidenceID_InputSensitivity(t *testing.T) {
	base := EvidenceID("dv-1", "engineA", "loss_exposure", "claim-7")

	variants := map[string]string{
		"dataset version": EvidenceID("dv-2", "engineA", "loss_exposure", "claim-7"),
		"engine":          EvidenceID("dv-1", "engineB", "loss_exposure", "claim-7"),
		"kind":            EvidenceID("dv-1", "engineA", "claim_validation", "claim-7"),
		"stable key":      EvidenceID("dv-1", "engineA", "loss_exposure", "claim-8"),
	}
	for name, got := range variants {
		assert.NotEqual(t, base, got, "changing %s must change the identifier", name)
	}
}

func TestEvidenceID_EncodingUnambiguous(t *testing.T) {
	// Length prefixes keep part boundaries distinct: shifting a character
	// between adjacent parts must not produce the same hash input.
	a := EvidenceID("dv-1", "engineAx", "loss", "claim-7")
	b := EvidenceID("dv-1x", "engineA", "loss", "claim-7")
	c := EvidenceID("dv-1", "engineA", "xloss", "claim-7")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestRecordTypeTagsNamespace(t *testing.T) {
	ev := EvidenceID("dv-1", "engineA", "loss_exposure", "claim-7")
	fd := FindingID("dv-1", "engineA", "loss_exposure", "claim-7")
	assert.NotEqual(t, ev, fd, "evidence and finding ids must not collide on identical key parts")
}

func TestLinkID(t *testing.T) {
	a := LinkID("dv-1", "finding-1", "evidence-1", "")
	b := LinkID("dv-1", "finding-1", "evidence-1", "")
	assert.Equal(t, a, b)

	tagged := LinkID("dv-1", "finding-1", "evidence-1", "supporting")
	assert.NotEqual(t, a, tagged, "link kind must disambiguate link identity")

	swapped := LinkID("dv-1", "evidence-1", "finding-1", "")
	assert.NotEqual(t, a, swapped, "encoding must be order-sensitive")
}
