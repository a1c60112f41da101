package model

// DocumentIdentity is the stable identity assigned to an ingested document.
// DocumentID is a content fingerprint, so byte-identical re-uploads share it.
type DocumentIdentity struct {
	DocumentID        string       `json:"document_id"`
	DocumentType      DocumentType `json:"document_type"`
	IngestionSequence int64        `json:"ingestion_sequence"`
	ProfileID         string       `json:"profile_id"`
}
