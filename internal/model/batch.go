package model

// Document is one ingested document as delivered by the fact extractor.
// Content is the raw bytes or text used for fingerprinting; Facts holds the
// extractor's untyped line items.
type Document struct {
	Content           string           `json:"content,omitempty" yaml:"content,omitempty"`
	Path              string           `json:"path,omitempty" yaml:"path,omitempty"`
	DocumentType      DocumentType     `json:"document_type" yaml:"document_type"`
	IngestionSequence int64            `json:"ingestion_sequence" yaml:"ingestion_sequence"`
	Facts             []map[string]any `json:"facts" yaml:"facts"`
	ExtractError      string           `json:"extract_error,omitempty" yaml:"extract_error,omitempty"`
}

// ProfileContext is read-only reference data for issue rules.
type ProfileContext struct {
	InNetworkProviders    []string `json:"in_network_providers,omitempty" yaml:"in_network_providers,omitempty" mapstructure:"in_network_providers"`
	OutOfNetworkProviders []string `json:"out_of_network_providers,omitempty" yaml:"out_of_network_providers,omitempty" mapstructure:"out_of_network_providers"`
	ReimbursableCodes     []string `json:"reimbursable_codes,omitempty" yaml:"reimbursable_codes,omitempty" mapstructure:"reimbursable_codes"`
}

// ProfileBatch is the unit of reconciliation: every document for one profile.
type ProfileBatch struct {
	ProfileID string         `json:"profile_id" yaml:"profile_id"`
	Context   ProfileContext `json:"context" yaml:"context"`
	Documents []Document     `json:"documents" yaml:"documents"`
}

// Rejection reports a fact that failed normalization.
type Rejection struct {
	DocumentID   string       `json:"document_id"`
	DocumentType DocumentType `json:"document_type"`
	Sequence     int64        `json:"ingestion_sequence"`
	FactIndex    int          `json:"fact_index"`
	Kind         string       `json:"kind"`
	Field        string       `json:"field,omitempty"`
	Message      string       `json:"message"`
}

// DuplicateDocument reports a byte-identical re-ingestion that was skipped.
type DuplicateDocument struct {
	DocumentID       string       `json:"document_id"`
	DocumentType     DocumentType `json:"document_type"`
	Sequence         int64        `json:"ingestion_sequence"`
	OriginalSequence int64        `json:"original_sequence"`
}

// Notice is a non-fatal per-document observation, such as extractor failure.
type Notice struct {
	DocumentID string `json:"document_id"`
	Sequence   int64  `json:"ingestion_sequence"`
	Message    string `json:"message"`
}

// Stats summarizes a reconciliation run.
type Stats struct {
	Documents     int `json:"documents"`
	Facts         int `json:"facts"`
	AcceptedFacts int `json:"accepted_facts"`
	RejectedFacts int `json:"rejected_facts"`
	Transactions  int `json:"transactions"`
	Cells         int `json:"cells"`
	Issues        int `json:"issues"`
}

// Result is the final output of reconciling one profile batch.
type Result struct {
	ProfileID    string                  `json:"profile_id"`
	Transactions []*CanonicalTransaction `json:"transactions"`
	Matrix       *CoverageMatrix         `json:"matrix"`
	Issues       []Issue                 `json:"issues"`
	Rejections   []Rejection             `json:"rejections"`
	Duplicates   []DuplicateDocument     `json:"duplicates"`
	Conflicts    []IdentityConflict      `json:"conflicts"`
	Notices      []Notice                `json:"notices"`
	Stats        Stats                   `json:"stats"`
}

// AdvisoryIssues returns the issues with Low confidence.
func (r *Result) AdvisoryIssues() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Confidence.Advisory() {
			out = append(out, is)
		}
	}
	return out
}
