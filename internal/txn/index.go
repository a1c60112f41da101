// Package txn builds canonical transactions from normalized facts and
// merges facts that describe the same clinical billing event.
package txn

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/provider"
)

// transactionNamespace seeds deterministic transaction ids.
var transactionNamespace = uuid.MustParse("6f1c2a7e-9b4d-5c3e-8a21-0d9e4b7f3c15")

// Rejection reasons for candidate transactions.
const (
	ReasonSameDocument = "same_document"
	ReasonDateWindow   = "date_out_of_window"
	ReasonAmountWindow = "amount_out_of_window"
	ReasonClaimNumber  = "claim_number_conflict"
	ReasonPatient      = "patient_conflict"
	ReasonSlotConflict = "amount_slot_conflict"
)

type bucketKey struct {
	provider string
	code     string
}

func (k bucketKey) String() string {
	return k.provider + "\x00" + k.code
}

// Candidate describes an existing transaction considered for a fact.
type Candidate struct {
	TransactionID string  `json:"transaction_id"`
	Score         float64 `json:"score,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// MergeResult is the outcome of ingesting one fact.
type MergeResult struct {
	Transaction *model.CanonicalTransaction
	Created     bool
	Score       float64
	// Ambiguous is set when several transactions tied for best match; the
	// earliest-created one was chosen.
	Ambiguous  bool
	Candidates []Candidate
}

// Index is the per-profile transaction index. It is owned by a single
// writer for the duration of a batch and is not safe for concurrent use.
// Facts must be ingested in ingestion-sequence order.
type Index struct {
	profileID string
	tol       Tolerance
	providers *provider.Resolver
	buckets   map[bucketKey][]*model.CanonicalTransaction
	order     []*model.CanonicalTransaction
	lastSeq   int64
	facts     int
}

// NewIndex creates an empty index for one profile.
func NewIndex(profileID string, tol Tolerance) *Index {
	return &Index{
		profileID: profileID,
		tol:       tol,
		providers: provider.NewResolver(tol.ProviderSimilarity),
		buckets:   make(map[bucketKey][]*model.CanonicalTransaction),
		lastSeq:   math.MinInt64,
	}
}

// Ingest merges fact into the best matching transaction or creates a new
// one. factIndex is the fact's position within its document.
func (ix *Index) Ingest(fact model.NormalizedFact, id model.DocumentIdentity, factIndex int) (MergeResult, error) {
	if err := ix.check(fact, id); err != nil {
		return MergeResult{}, err
	}
	ix.lastSeq = id.IngestionSequence
	ix.facts++

	key := bucketKey{
		provider: ix.providers.Key(fact.ProviderName, fact.ProviderID),
		code:     fact.Code,
	}

	var (
		best       *model.CanonicalTransaction
		bestScore  float64
		ties       int
		candidates []Candidate
	)
	// Bucket order is creation order, so strict > keeps the earliest
	// (lowest id) transaction on ties.
	for _, tx := range ix.buckets[key] {
		score, reason := ix.evaluate(tx, fact, id)
		candidates = append(candidates, Candidate{TransactionID: tx.TransactionID, Score: score, Reason: reason})
		if reason != "" {
			continue
		}
		switch {
		case best == nil || score > bestScore:
			best, bestScore, ties = tx, score, 1
		case score == bestScore:
			ties++
		}
	}

	contribution := model.Contribution{
		DocumentID:   id.DocumentID,
		DocumentType: fact.DocumentType,
		Sequence:     id.IngestionSequence,
		FactIndex:    factIndex,
		ServiceDate:  fact.ServiceDate,
		ClaimNumber:  fact.ClaimNumber,
		Amounts:      fact.Amounts(),
		Extras:       fact.Extras,
	}

	if best == nil {
		tx := ix.create(key, fact, contribution)
		return MergeResult{Transaction: tx, Created: true, Score: 1, Candidates: candidates}, nil
	}

	merge(best, fact, contribution, bestScore)
	if ties > 1 {
		zap.L().Debug("txn: ambiguous match resolved by earliest transaction",
			zap.String("profile_id", ix.profileID),
			zap.String("document_id", id.DocumentID),
			zap.String("transaction_id", best.TransactionID),
			zap.Int("ties", ties),
		)
	}
	return MergeResult{Transaction: best, Score: bestScore, Ambiguous: ties > 1, Candidates: candidates}, nil
}

// Transactions returns all transactions in creation order.
func (ix *Index) Transactions() []*model.CanonicalTransaction {
	out := make([]*model.CanonicalTransaction, len(ix.order))
	copy(out, ix.order)
	return out
}

// FactCount returns the number of facts ingested.
func (ix *Index) FactCount() int {
	return ix.facts
}

// SourceCount returns the total number of source document ids across all
// transactions.
func (ix *Index) SourceCount() int {
	n := 0
	for _, tx := range ix.order {
		n += len(tx.SourceDocumentIDs)
	}
	return n
}

func (ix *Index) check(fact model.NormalizedFact, id model.DocumentIdentity) error {
	violation := func(detail string) error {
		return &model.InvariantViolation{
			ProfileID:  ix.profileID,
			DocumentID: id.DocumentID,
			Sequence:   id.IngestionSequence,
			Detail:     detail,
		}
	}
	switch {
	case id.DocumentID == "":
		return violation("document id is empty")
	case id.ProfileID != ix.profileID:
		return violation(fmt.Sprintf("document belongs to profile %q", id.ProfileID))
	case id.DocumentType != fact.DocumentType:
		return violation(fmt.Sprintf("fact type %s does not match document type %s", fact.DocumentType, id.DocumentType))
	case id.IngestionSequence < ix.lastSeq:
		return violation(fmt.Sprintf("sequence %d ingested after %d", id.IngestionSequence, ix.lastSeq))
	}
	for _, f := range fact.Amounts().Fields() {
		if f.Cents != nil && *f.Cents < 0 {
			return violation(fmt.Sprintf("negative %s amount %d", f.Name, *f.Cents))
		}
	}
	return nil
}

// evaluate scores tx as a match for fact. A non-empty reason means tx is
// not eligible.
func (ix *Index) evaluate(tx *model.CanonicalTransaction, fact model.NormalizedFact, id model.DocumentIdentity) (float64, string) {
	if tx.HasSource(id.DocumentID) {
		return 0, ReasonSameDocument
	}

	days := tx.ServiceDate.AbsDays(fact.ServiceDate)
	if days > ix.tol.DateDays {
		return 0, ReasonDateWindow
	}
	score := ix.tol.DateScore(days)

	if ref := tx.ReferenceBilled(); ref != nil && fact.BilledCents != nil {
		if !ix.tol.AmountsMatch(*ref, *fact.BilledCents) {
			return 0, ReasonAmountWindow
		}
		if s := ix.tol.AmountScore(*ref, *fact.BilledCents); s < score {
			score = s
		}
	}

	if fact.ClaimNumber != "" {
		if known := tx.ClaimNumbers[fact.DocumentType.Family()]; len(known) > 0 && !contains(known, fact.ClaimNumber) {
			return 0, ReasonClaimNumber
		}
	}

	if fact.PatientRef != "" && tx.PatientRef != "" && !strings.EqualFold(fact.PatientRef, tx.PatientRef) {
		return 0, ReasonPatient
	}

	if slot, ok := tx.Amounts[fact.DocumentType]; ok && ix.slotConflict(slot, fact.Amounts()) {
		return 0, ReasonSlotConflict
	}
	return score, ""
}

// slotConflict reports whether a second fact of the same type disagrees
// materially with amounts already recorded for that type.
func (ix *Index) slotConflict(have, next model.AmountSet) bool {
	hf, nf := have.Fields(), next.Fields()
	for i := range hf {
		if hf[i].Cents == nil || nf[i].Cents == nil {
			continue
		}
		if !ix.tol.AmountsMatch(*hf[i].Cents, *nf[i].Cents) {
			return true
		}
	}
	return false
}

func (ix *Index) create(key bucketKey, fact model.NormalizedFact, c model.Contribution) *model.CanonicalTransaction {
	ordinal := len(ix.buckets[key]) + 1
	tx := &model.CanonicalTransaction{
		TransactionID:     transactionID(ix.profileID, key, ordinal),
		ProfileID:         ix.profileID,
		ProviderKey:       key.provider,
		ProviderName:      fact.ProviderName,
		ProviderID:        fact.ProviderID,
		PatientRef:        fact.PatientRef,
		ServiceDate:       fact.ServiceDate,
		Code:              fact.Code,
		Description:       fact.Description,
		Amounts:           map[model.DocumentType]model.AmountSet{fact.DocumentType: fact.Amounts()},
		SourceDocumentIDs: []string{c.DocumentID},
		Contributions:     []model.Contribution{c},
		MatchConfidence:   1,
	}
	addClaim(tx, fact)
	ix.buckets[key] = append(ix.buckets[key], tx)
	ix.order = append(ix.order, tx)
	return tx
}

func merge(tx *model.CanonicalTransaction, fact model.NormalizedFact, c model.Contribution, score float64) {
	tx.AddSource(c.DocumentID)
	slot := tx.Amounts[fact.DocumentType]
	slot.FillFrom(fact.Amounts())
	tx.Amounts[fact.DocumentType] = slot
	addClaim(tx, fact)
	tx.Contributions = append(tx.Contributions, c)

	if tx.ProviderID == "" {
		tx.ProviderID = fact.ProviderID
	}
	if tx.ProviderName == "" {
		tx.ProviderName = fact.ProviderName
	}
	if tx.PatientRef == "" {
		tx.PatientRef = fact.PatientRef
	}
	if tx.Description == "" {
		tx.Description = fact.Description
	}
	if score < tx.MatchConfidence {
		tx.MatchConfidence = score
	}
}

func addClaim(tx *model.CanonicalTransaction, fact model.NormalizedFact) {
	if fact.ClaimNumber == "" {
		return
	}
	if tx.ClaimNumbers == nil {
		tx.ClaimNumbers = make(map[string][]string)
	}
	fam := fact.DocumentType.Family()
	if contains(tx.ClaimNumbers[fam], fact.ClaimNumber) {
		return
	}
	tx.ClaimNumbers[fam] = append(tx.ClaimNumbers[fam], fact.ClaimNumber)
	sort.Strings(tx.ClaimNumbers[fam])
}

// transactionID derives an id from the dedup key and the transaction's
// creation ordinal within its bucket, so lower ids were created earlier.
func transactionID(profileID string, key bucketKey, ordinal int) string {
	u := uuid.NewSHA1(transactionNamespace, []byte(profileID+"\x00"+key.String()))
	return fmt.Sprintf("txn_%s_%06d", strings.ReplaceAll(u.String(), "-", "")[:12], ordinal)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
