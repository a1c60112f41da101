package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimrecon/internal/model"
)

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint([]byte("statement #1"))
	b := Fingerprint([]byte("statement #1"))
	c := Fingerprint([]byte("statement #2"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("doc_")+2*fingerprintLen)
}

func TestAssign(t *testing.T) {
	id := Assign([]byte("eob"), model.DocumentEOB, "p1", 7)

	assert.Equal(t, Fingerprint([]byte("eob")), id.DocumentID)
	assert.Equal(t, model.DocumentEOB, id.DocumentType)
	assert.Equal(t, int64(7), id.IngestionSequence)
	assert.Equal(t, "p1", id.ProfileID)
}

func TestContentOf_FallsBackToFacts(t *testing.T) {
	doc := model.Document{
		DocumentType: model.DocumentBill,
		Facts:        []map[string]any{{"billed": "10", "provider": "A"}},
	}
	reordered := model.Document{
		DocumentType: model.DocumentBill,
		Facts:        []map[string]any{{"provider": "A", "billed": "10"}},
	}

	a, err := ContentOf(doc)
	require.NoError(t, err)
	b, err := ContentOf(reordered)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	retyped := doc
	retyped.DocumentType = model.DocumentEOB
	r, err := ContentOf(retyped)
	require.NoError(t, err)
	assert.Equal(t, a, r)

	doc.Content = "raw text"
	c, err := ContentOf(doc)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw text"), c)
}

func TestContentOf_EmptyDocumentsStayDistinct(t *testing.T) {
	first, err := ContentOf(model.Document{DocumentType: model.DocumentEOB, IngestionSequence: 1, ExtractError: "ocr timeout"})
	require.NoError(t, err)
	second, err := ContentOf(model.Document{DocumentType: model.DocumentEOB, IngestionSequence: 2, ExtractError: "ocr timeout"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestRegistry_Admit(t *testing.T) {
	r := NewRegistry()
	first := Assign([]byte("x"), model.DocumentBill, "p1", 1)
	again := Assign([]byte("x"), model.DocumentBill, "p1", 4)
	retyped := Assign([]byte("x"), model.DocumentEOB, "p1", 5)
	other := Assign([]byte("y"), model.DocumentEOB, "p1", 6)

	adm, kept := r.Admit(first)
	assert.Equal(t, Admitted, adm)
	assert.Equal(t, first, kept)

	adm, kept = r.Admit(again)
	assert.Equal(t, Duplicate, adm)
	assert.Equal(t, int64(1), kept.IngestionSequence)

	adm, kept = r.Admit(retyped)
	assert.Equal(t, Conflict, adm)
	assert.Equal(t, model.DocumentBill, kept.DocumentType)

	adm, _ = r.Admit(other)
	assert.Equal(t, Admitted, adm)
	assert.Equal(t, 2, r.Len())
}
