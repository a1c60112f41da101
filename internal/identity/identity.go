// Package identity assigns stable content fingerprints to ingested documents
// and decides which documents are admitted into a reconciliation batch.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimrecon/internal/model"
)

// fingerprintLen is the number of hash bytes kept in a document id.
const fingerprintLen = 16

// Fingerprint hashes document content into a stable id. Byte-identical
// content always yields the same id.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return "doc_" + hex.EncodeToString(sum[:fingerprintLen])
}

// Assign computes the identity of one document. The ingestion sequence is
// supplied by the caller and is the tie-breaker for merge order.
func Assign(content []byte, docType model.DocumentType, profileID string, sequence int64) model.DocumentIdentity {
	return model.DocumentIdentity{
		DocumentID:        Fingerprint(content),
		DocumentType:      docType,
		IngestionSequence: sequence,
		ProfileID:         profileID,
	}
}

// ContentOf returns the bytes to fingerprint for doc: its raw content when
// present, otherwise the canonical JSON of its extracted facts. The document
// type is not part of the fingerprint, so the same facts declared under two
// types surface as an identity conflict. A document with neither content nor
// facts is identified by its ingestion sequence.
func ContentOf(doc model.Document) ([]byte, error) {
	if doc.Content != "" {
		return []byte(doc.Content), nil
	}
	payload := struct {
		Facts    []map[string]any `json:"facts"`
		Sequence int64            `json:"sequence,omitempty"`
	}{Facts: doc.Facts}
	if len(doc.Facts) == 0 {
		payload.Sequence = doc.IngestionSequence
	}
	// encoding/json sorts map keys, so the encoding is canonical.
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "identity: encode facts")
	}
	return b, nil
}
