package identity

import "github.com/sells-group/claimrecon/internal/model"

// Admission is the outcome of offering a document to a Registry.
type Admission int

const (
	// Admitted means the document is new and its facts should be ingested.
	Admitted Admission = iota
	// Duplicate means an identical document of the same type was seen before.
	Duplicate
	// Conflict means the fingerprint was seen with a different document type.
	Conflict
)

// Registry tracks the documents admitted to one profile's batch. Offer
// documents in ingestion order; the earliest sequence always wins.
type Registry struct {
	seen map[string]model.DocumentIdentity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]model.DocumentIdentity)}
}

// Admit records id and reports whether it is new, a duplicate, or a
// conflicting claim on an existing fingerprint. The returned identity is
// the one that was kept.
func (r *Registry) Admit(id model.DocumentIdentity) (Admission, model.DocumentIdentity) {
	prev, ok := r.seen[id.DocumentID]
	if !ok {
		r.seen[id.DocumentID] = id
		return Admitted, id
	}
	if prev.DocumentType == id.DocumentType {
		return Duplicate, prev
	}
	return Conflict, prev
}

// Len returns the number of admitted documents.
func (r *Registry) Len() int {
	return len(r.seen)
}
