// Package reconcile orchestrates one reconciliation run: stage the source
// records, build the blocking index over the target population, resolve a
// match result per source and apply the accepted links.
//
// A run is a single batch pass. Matching shares mutable state (the claimed
// targets) so a run is single-threaded by design; concurrent runs against
// the same target store need external locking.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/arrowlimo/arrow-limo-sub003/internal/adapters/extract"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/index"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/matcher"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/resolver"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/storage"
)

// Pipeline wires the matching stages together for repeated runs.
type Pipeline struct {
	repo      storage.Repository
	matchCfg  matcher.Config
	resolve   *resolver.Resolver
	overrides extract.OverrideMap
	logger    *slog.Logger
}

// New creates a pipeline over the given target store.
func New(repo storage.Repository, matchCfg matcher.Config, resolveCfg resolver.Config, overrides extract.OverrideMap, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:      repo,
		matchCfg:  matchCfg,
		resolve:   resolver.New(resolveCfg),
		overrides: overrides,
		logger:    logger,
	}
}

// Run executes one batch pass over the staged source records. Sources are
// processed in source-id order so reruns on identical input resolve ties
// identically. Cancelling the context stops the run before the next source
// is processed; already-computed outcomes stay valid and reportable.
func (p *Pipeline) Run(ctx context.Context, sources []*record.SourceRecord, opts Options) (*Result, error) {
	targets, err := p.repo.ListTargets(opts.TargetTables)
	if err != nil {
		return nil, fmt.Errorf("load target population: %w", err)
	}

	idx := index.Build(targets)
	idxStats := idx.Stats()
	p.logger.Debug("Built target index",
		"targets", idxStats.Targets,
		"unique_amounts", idxStats.UniqueAmounts,
		"unique_buckets", idxStats.UniqueBuckets,
	)

	gen := matcher.NewGenerator(p.matchCfg, idx, p.overrides, opts.Rematch)
	apply := newApplier(p.repo, p.logger)

	runID, err := p.repo.StartRun(!opts.Apply, opts.MinConfidence)
	if err != nil {
		// Tracking failure shouldn't block the run.
		p.logger.Warn("Failed to start run tracking", "error", err)
	}

	// Stable processing order: ties for the same target must resolve the
	// same way on every rerun.
	ordered := make([]*record.SourceRecord, len(sources))
	copy(ordered, sources)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	result := &Result{
		RunID:        runID,
		Outcomes:     make([]SourceOutcome, 0, len(ordered)),
		AdapterStats: make(map[record.SourceSystem]*extract.Stats),
	}
	result.Counts.Staged = len(ordered)

	aborted := false
	for _, src := range ordered {
		if ctx.Err() != nil {
			p.logger.Warn("Run cancelled; stopping before apply of remaining sources",
				"processed", len(result.Outcomes),
				"remaining", len(ordered)-len(result.Outcomes),
			)
			aborted = true
			break
		}
		result.Outcomes = append(result.Outcomes, p.processSource(src, gen, apply, runID, opts, result))
	}

	status := "completed"
	switch {
	case aborted:
		status = "aborted"
	case len(result.Errors) > 0:
		status = "completed_with_errors"
	}
	if runID > 0 {
		if err := p.repo.CompleteRun(runID, result.Counts, status); err != nil {
			p.logger.Warn("Failed to complete run tracking", "error", err)
		}
	}

	p.logger.Info("Run finished",
		"run_id", runID,
		"staged", result.Counts.Staged,
		"strict", result.Counts.StrictMatched,
		"fuzzy", result.Counts.FuzzyMatched,
		"unmatched", result.Counts.Unmatched,
		"applied", result.Counts.Applied,
		"skipped", result.Counts.Skipped,
		"errors", result.Counts.Errored,
		"dry_run", !opts.Apply,
	)

	return result, nil
}

// processSource runs one source record through candidates, resolution and
// the apply stage, updating the run counters.
func (p *Pipeline) processSource(src *record.SourceRecord, gen *matcher.Generator, apply *applier, runID int64, opts Options, result *Result) SourceOutcome {
	// Processed guard: a decision for this source already exists from an
	// earlier run, so there is nothing to score.
	if already, err := p.repo.HasDecision(src.IdempotencyKey()); err == nil && already {
		p.logger.Debug("Skipping already-linked source", "source_id", src.ID)
		result.Counts.Skipped++
		return SourceOutcome{
			Result:  &record.MatchResult{Source: src, Pass: record.PassNone},
			Stage:   matcher.StageNone,
			Outcome: record.OutcomeAlreadyApplied,
		}
	}

	pairs, stage := gen.Candidates(src)
	res := p.resolve.Resolve(src, pairs, stage)

	switch res.Pass {
	case record.PassStrict:
		result.Counts.StrictMatched++
	case record.PassFuzzy:
		result.Counts.FuzzyMatched++
	default:
		result.Counts.Unmatched++
	}

	if res.Matched() {
		p.logger.Debug("Resolved match",
			"source_id", src.ID,
			"target_id", res.BestTarget.ID,
			"pass", string(res.Pass),
			"confidence", res.Confidence,
			"stage", string(stage),
			"signals", res.SignalsUsed,
		)
	} else {
		p.logger.Debug("No believable match",
			"source_id", src.ID,
			"reason", string(res.UnmatchedReason),
			"stage", string(stage),
		)
	}

	outcome, err := apply.apply(res, runID, opts)
	switch outcome {
	case record.OutcomeApplied:
		result.Counts.Applied++
	case record.OutcomeSkippedDryRun, record.OutcomeSkippedAlreadyLinked,
		record.OutcomeSkippedBelowThreshold, record.OutcomeAlreadyApplied:
		result.Counts.Skipped++
	case record.OutcomeApplyFailed:
		result.Counts.Errored++
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("source %s (%s, $%s): %w",
			src.ID,
			src.OccurredOn.Format("2006-01-02"),
			src.Amount.StringFixed(2),
			err))
	}

	return SourceOutcome{Result: res, Stage: stage, Outcome: outcome, Err: err}
}
