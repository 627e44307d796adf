package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveExternalID_Deterministic(t *testing.T) {
	amount := MustParseMoney("11.48")
	id1 := DeriveExternalID(12345, amount, "2024-11-18", "Checking Account", "Amazon")
	id2 := DeriveExternalID(12345, amount, "2024-11-18", "Checking Account", "Amazon")

	require.Equal(t, id1, id2, "external-id must be a pure function of its inputs")
	assert.Contains(t, id1, ":pl:12345")
	assert.Len(t, id1[:16], 16)

	docID, ok := ParseExternalID(id1)
	require.True(t, ok)
	assert.Equal(t, int64(12345), docID)
}

func TestDeriveExternalID_ChangesWithAmountOrDate(t *testing.T) {
	a := DeriveExternalID(1, MustParseMoney("10.00"), "2024-01-01", "A", "B")
	b := DeriveExternalID(1, MustParseMoney("10.01"), "2024-01-01", "A", "B")
	c := DeriveExternalID(1, MustParseMoney("10.00"), "2024-01-02", "A", "B")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestParseExternalID_Legacy(t *testing.T) {
	docID, ok := ParseExternalID("paperless:999:abc0123456789def:11.48:2024-11-18")
	require.True(t, ok)
	assert.Equal(t, int64(999), docID)
}

func TestParseExternalID_Invalid(t *testing.T) {
	_, ok := ParseExternalID("not-an-external-id")
	assert.False(t, ok)
}

func TestExtractLinkedDocID_PriorityOrder(t *testing.T) {
	// external_id wins over internal_reference and notes when all present.
	id, ok := ExtractLinkedDocID(
		"aaaaaaaaaaaaaaaa:pl:42",
		"PAPERLESS:99",
		"Paperless doc_id=77",
	)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestExtractLinkedDocID_FallsBackToInternalReference(t *testing.T) {
	id, ok := ExtractLinkedDocID("", "PAPERLESS:99", "Paperless doc_id=77")
	require.True(t, ok)
	assert.Equal(t, int64(99), id)
}

func TestExtractLinkedDocID_FallsBackToNotes(t *testing.T) {
	id, ok := ExtractLinkedDocID("", "", "some text; Paperless doc_id=77; more text")
	require.True(t, ok)
	assert.Equal(t, int64(77), id)
}

func TestExtractLinkedDocID_NoMarkers(t *testing.T) {
	_, ok := ExtractLinkedDocID("", "", "")
	assert.False(t, ok)
}
