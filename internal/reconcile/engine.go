// Package reconcile runs the full reconciliation pipeline for profile
// batches: normalization, document admission, transaction merging,
// coverage derivation, and issue detection.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/claimrecon/internal/coverage"
	"github.com/sells-group/claimrecon/internal/detect"
	"github.com/sells-group/claimrecon/internal/identity"
	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/normalize"
	"github.com/sells-group/claimrecon/internal/txn"
)

// Options configures an Engine.
type Options struct {
	Match               txn.Tolerance
	SettlementCents     int64
	Detect              detect.Policy
	DocumentConcurrency int
	ProfileConcurrency  int
}

// DefaultOptions returns the standard engine configuration.
func DefaultOptions() Options {
	return Options{
		Match:               txn.DefaultTolerance(),
		SettlementCents:     coverage.DefaultOptions().SettlementCents,
		Detect:              detect.DefaultPolicy(),
		DocumentConcurrency: 8,
		ProfileConcurrency:  4,
	}
}

// Engine reconciles profile batches. It holds no per-profile state and is
// safe for concurrent use.
type Engine struct {
	opts    Options
	builder *coverage.Builder
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	if opts.DocumentConcurrency < 1 {
		opts.DocumentConcurrency = 1
	}
	if opts.ProfileConcurrency < 1 {
		opts.ProfileConcurrency = 1
	}
	return &Engine{
		opts:    opts,
		builder: coverage.NewBuilder(coverage.Options{Match: opts.Match, SettlementCents: opts.SettlementCents}),
	}
}

type preparedFact struct {
	index int
	fact  model.NormalizedFact
}

type preparedDoc struct {
	doc        model.Document
	id         model.DocumentIdentity
	facts      []preparedFact
	rejections []model.Rejection
}

// Reconcile runs one profile batch to completion. Malformed facts are
// reported in the result and never abort the batch. An invariant violation
// aborts the whole profile and no partial result is returned.
func (e *Engine) Reconcile(ctx context.Context, batch model.ProfileBatch) (*model.Result, error) {
	log := zap.L().With(zap.String("profile_id", batch.ProfileID))

	docs, err := e.prepare(ctx, batch)
	if err != nil {
		return nil, err
	}

	// Merge order is ingestion order. Ties fall back to content identity so
	// any permutation of the same batch reduces identically.
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.id.IngestionSequence != b.id.IngestionSequence {
			return a.id.IngestionSequence < b.id.IngestionSequence
		}
		if a.id.DocumentID != b.id.DocumentID {
			return a.id.DocumentID < b.id.DocumentID
		}
		return a.id.DocumentType < b.id.DocumentType
	})

	res := &model.Result{
		ProfileID:    batch.ProfileID,
		Transactions: []*model.CanonicalTransaction{},
		Issues:       []model.Issue{},
		Rejections:   []model.Rejection{},
		Duplicates:   []model.DuplicateDocument{},
		Conflicts:    []model.IdentityConflict{},
		Notices:      []model.Notice{},
	}

	registry := identity.NewRegistry()
	index := txn.NewIndex(batch.ProfileID, e.opts.Match)
	accepted := 0

	for _, d := range docs {
		switch outcome, kept := registry.Admit(d.id); outcome {
		case identity.Duplicate:
			res.Duplicates = append(res.Duplicates, model.DuplicateDocument{
				DocumentID:       d.id.DocumentID,
				DocumentType:     d.id.DocumentType,
				Sequence:         d.id.IngestionSequence,
				OriginalSequence: kept.IngestionSequence,
			})
			log.Debug("skipping duplicate document", zap.String("document_id", d.id.DocumentID))
			continue
		case identity.Conflict:
			conflict := model.IdentityConflict{
				DocumentID:   d.id.DocumentID,
				KeptType:     kept.DocumentType,
				KeptSequence: kept.IngestionSequence,
				DroppedType:  d.id.DocumentType,
				DroppedSeq:   d.id.IngestionSequence,
			}
			res.Conflicts = append(res.Conflicts, conflict)
			log.Warn("document identity conflict", zap.Error(conflict))
			continue
		}

		res.Stats.Documents++
		if d.doc.ExtractError != "" {
			res.Notices = append(res.Notices, model.Notice{
				DocumentID: d.id.DocumentID,
				Sequence:   d.id.IngestionSequence,
				Message:    "extraction failed: " + d.doc.ExtractError,
			})
			continue
		}
		if len(d.doc.Facts) == 0 {
			res.Notices = append(res.Notices, model.Notice{
				DocumentID: d.id.DocumentID,
				Sequence:   d.id.IngestionSequence,
				Message:    "no facts extracted",
			})
			continue
		}

		res.Stats.Facts += len(d.doc.Facts)
		res.Rejections = append(res.Rejections, d.rejections...)
		for _, pf := range d.facts {
			if _, err := index.Ingest(pf.fact, d.id, pf.index); err != nil {
				return nil, e.abort(log, err)
			}
			accepted++
		}
	}

	if got := index.SourceCount(); got != accepted {
		return nil, e.abort(log, &model.InvariantViolation{
			ProfileID: batch.ProfileID,
			Detail:    fmt.Sprintf("%d normalized facts but %d transaction sources", accepted, got),
		})
	}

	res.Transactions = index.Transactions()
	res.Matrix = e.builder.Build(batch.ProfileID, res.Transactions)
	res.Issues = detect.New(e.opts.Detect, e.opts.Match, batch.Context).Detect(res.Matrix)
	if res.Issues == nil {
		res.Issues = []model.Issue{}
	}
	for _, is := range res.Issues {
		if is.MaxSavingsCents < 0 {
			return nil, e.abort(log, &model.InvariantViolation{
				ProfileID: batch.ProfileID,
				Detail:    fmt.Sprintf("issue %s has negative savings %d", is.IssueID, is.MaxSavingsCents),
			})
		}
	}

	res.Stats.AcceptedFacts = accepted
	res.Stats.RejectedFacts = len(res.Rejections)
	res.Stats.Transactions = len(res.Transactions)
	res.Stats.Cells = len(res.Matrix.Cells)
	res.Stats.Issues = len(res.Issues)

	log.Info("reconciliation complete",
		zap.Int("documents", res.Stats.Documents),
		zap.Int("accepted_facts", res.Stats.AcceptedFacts),
		zap.Int("rejected_facts", res.Stats.RejectedFacts),
		zap.Int("transactions", res.Stats.Transactions),
		zap.Int("issues", res.Stats.Issues),
	)
	return res, nil
}

func (e *Engine) abort(log *zap.Logger, err error) error {
	var iv *model.InvariantViolation
	if errors.As(err, &iv) {
		log.Error("invariant violation, profile aborted",
			zap.String("document_id", iv.DocumentID),
			zap.Int64("ingestion_sequence", iv.Sequence),
			zap.String("detail", iv.Detail),
		)
	}
	return eris.Wrap(err, "reconcile: abort profile")
}

// prepare fingerprints and normalizes every document concurrently. Each
// goroutine writes only its own slot.
func (e *Engine) prepare(ctx context.Context, batch model.ProfileBatch) ([]preparedDoc, error) {
	out := make([]preparedDoc, len(batch.Documents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.DocumentConcurrency)

	for i, doc := range batch.Documents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := identity.ContentOf(doc)
			if err != nil {
				return eris.Wrapf(err, "reconcile: document %d", i)
			}
			pd := preparedDoc{
				doc: doc,
				id:  identity.Assign(content, doc.DocumentType, batch.ProfileID, doc.IngestionSequence),
			}
			if doc.ExtractError == "" {
				pd.facts, pd.rejections = normalizeFacts(doc, pd.id)
			}
			out[i] = pd
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "reconcile: prepare documents")
	}
	return out, nil
}

func normalizeFacts(doc model.Document, id model.DocumentIdentity) ([]preparedFact, []model.Rejection) {
	var (
		facts      []preparedFact
		rejections []model.Rejection
	)
	for i, raw := range doc.Facts {
		fact, err := normalize.Normalize(raw, doc.DocumentType)
		if err != nil {
			rej := model.Rejection{
				DocumentID:   id.DocumentID,
				DocumentType: id.DocumentType,
				Sequence:     id.IngestionSequence,
				FactIndex:    i,
				Message:      err.Error(),
			}
			var ne *normalize.Error
			if errors.As(err, &ne) {
				rej.Kind = string(ne.Kind)
				rej.Field = ne.Field
			}
			rejections = append(rejections, rej)
			continue
		}
		facts = append(facts, preparedFact{index: i, fact: fact})
	}
	return facts, rejections
}
