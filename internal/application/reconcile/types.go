package reconcile

import (
	"github.com/arrowlimo/arrow-limo-sub003/internal/adapters/extract"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/matcher"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/storage"
)

// Options controls one pipeline run.
type Options struct {
	// Apply enables write mode. Default is dry-run: every step runs except
	// the final commit.
	Apply bool

	// MinConfidence is the minimum confidence tier required to apply a
	// decision.
	MinConfidence int

	// Rematch includes targets that already carry a link in candidate
	// generation.
	Rematch bool

	// TargetTables restricts the candidate population. Empty means all.
	TargetTables []record.TargetTable
}

// SourceOutcome is the full per-source trace of one run: the match result
// plus the terminal apply-stage state.
type SourceOutcome struct {
	Result  *record.MatchResult
	Stage   matcher.Stage
	Outcome record.Outcome
	Err     error // set when applying failed for a reason other than policy
}

// Result is everything one run produced, in stable source-id order.
type Result struct {
	RunID        int64
	Outcomes     []SourceOutcome
	AdapterStats map[record.SourceSystem]*extract.Stats
	Counts       storage.RunCounts

	// Errors collects per-decision apply failures. The run continues past
	// them; their presence means partial failure.
	Errors []error
}

// Decisions returns the linkage decisions the run applied (or would apply,
// for dry runs), in outcome order.
func (r *Result) Decisions() []*record.LinkageDecision {
	var out []*record.LinkageDecision
	for _, o := range r.Outcomes {
		if o.Outcome != record.OutcomeApplied && o.Outcome != record.OutcomeSkippedDryRun {
			continue
		}
		res := o.Result
		if res.BestTarget == nil {
			continue
		}
		out = append(out, &record.LinkageDecision{
			IdempotencyKey: res.Source.IdempotencyKey(),
			SourceID:       res.Source.ID,
			SourceSystem:   res.Source.SourceSystem,
			OriginKey:      res.Source.OriginKey,
			TargetID:       res.BestTarget.ID,
			TargetTable:    res.BestTarget.TargetTable,
			Amount:         res.Source.Amount,
			Confidence:     res.Confidence,
			Pass:           res.Pass,
			RunID:          r.RunID,
		})
	}
	return out
}
