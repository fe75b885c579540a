package reconcile

import (
	"errors"
	"log/slog"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/storage"
)

// applier persists accepted links. Each decision is applied inside its own
// transaction so one failure never aborts already-committed decisions; the
// claimed set enforces first-writer-wins within the run, in both dry-run
// and write mode, so the two modes report identically.
type applier struct {
	repo   storage.Repository
	logger *slog.Logger

	// claimed maps target id to the idempotency key that claimed it during
	// this run.
	claimed map[int64]string
}

func newApplier(repo storage.Repository, logger *slog.Logger) *applier {
	return &applier{
		repo:    repo,
		logger:  logger,
		claimed: make(map[int64]string),
	}
}

// apply runs the apply-stage policy for one match result and returns the
// terminal outcome. A non-nil error means the decision failed for a reason
// other than policy (storage trouble); the caller counts it and continues.
func (a *applier) apply(res *record.MatchResult, runID int64, opts Options) (record.Outcome, error) {
	if !res.Matched() {
		return record.OutcomeUnmatched, nil
	}

	key := res.Source.IdempotencyKey()
	targetID := res.BestTarget.ID

	if res.Confidence < opts.MinConfidence {
		a.logger.Debug("Below apply threshold",
			"source_id", res.Source.ID,
			"confidence", res.Confidence,
			"min_confidence", opts.MinConfidence,
		)
		return record.OutcomeSkippedBelowThreshold, nil
	}

	// First writer wins within the run; later sources that resolved to the
	// same target are conflicts, not matches.
	if holder, taken := a.claimed[targetID]; taken && holder != key {
		a.logger.Warn("Target already claimed in this run",
			"source_id", res.Source.ID,
			"target_id", targetID,
			"claimed_by", holder,
		)
		return record.OutcomeSkippedAlreadyLinked, nil
	}

	if !opts.Apply {
		// Dry run: every check above ran; only the commit is skipped.
		already, err := a.repo.HasDecision(key)
		if err != nil {
			return record.OutcomeSkippedDryRun, err
		}
		if already {
			return record.OutcomeAlreadyApplied, nil
		}
		a.claimed[targetID] = key
		a.logger.Debug("[DRY RUN] Would apply link",
			"source_id", res.Source.ID,
			"target_id", targetID,
			"confidence", res.Confidence,
			"pass", string(res.Pass),
		)
		return record.OutcomeSkippedDryRun, nil
	}

	decision := &record.LinkageDecision{
		IdempotencyKey: key,
		SourceID:       res.Source.ID,
		SourceSystem:   res.Source.SourceSystem,
		OriginKey:      res.Source.OriginKey,
		TargetID:       targetID,
		TargetTable:    res.BestTarget.TargetTable,
		Amount:         res.Source.Amount,
		Confidence:     res.Confidence,
		Pass:           res.Pass,
		RunID:          runID,
	}

	err := a.repo.ApplyDecision(decision)
	switch {
	case err == nil:
		a.claimed[targetID] = key
		a.logger.Info("Applied link",
			"source_id", res.Source.ID,
			"target_id", targetID,
			"confidence", res.Confidence,
			"pass", string(res.Pass),
		)
		return record.OutcomeApplied, nil
	case errors.Is(err, storage.ErrDuplicateDecision):
		a.logger.Debug("Decision already applied", "idempotency_key", key)
		return record.OutcomeAlreadyApplied, nil
	case errors.Is(err, storage.ErrAlreadyLinked):
		a.logger.Warn("Target linked by an earlier run",
			"source_id", res.Source.ID,
			"target_id", targetID,
		)
		return record.OutcomeSkippedAlreadyLinked, nil
	default:
		a.logger.Error("Failed to apply decision",
			"source_id", res.Source.ID,
			"target_id", targetID,
			"error", err,
		)
		return record.OutcomeApplyFailed, err
	}
}
