package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/arrow-limo-sub003/internal/adapters/extract"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/matcher"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/resolver"
	"github.com/arrowlimo/arrow-limo-sub003/internal/infrastructure/storage"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newPipeline(repo storage.Repository, overrides extract.OverrideMap) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repo, matcher.DefaultConfig(), resolver.DefaultConfig(), overrides, logger)
}

func source(id, originKey, amount string, on time.Time) *record.SourceRecord {
	return &record.SourceRecord{
		ID:           id,
		SourceSystem: record.SourcePOSPayment,
		Amount:       decimal.RequireFromString(amount),
		OccurredOn:   on,
		OriginKey:    originKey,
	}
}

func seedTarget(t *testing.T, repo storage.Repository, id int64, amount string, on time.Time) {
	t.Helper()
	require.NoError(t, repo.SaveTarget(&record.TargetRecord{
		ID:          id,
		TargetTable: record.TargetReservation,
		Amount:      decimal.RequireFromString(amount),
		OccurredOn:  on,
	}))
}

func TestRun_DryRunByDefault(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 1, "205.00", day(2013, time.November, 20))
	p := newPipeline(repo, nil)

	sources := []*record.SourceRecord{source("s1", "a", "205.00", day(2013, time.November, 20))}

	result, err := p.Run(context.Background(), sources, Options{MinConfidence: 6})
	require.NoError(t, err)

	// The match resolved but nothing was committed.
	assert.Equal(t, 1, result.Counts.StrictMatched)
	assert.Equal(t, 0, result.Counts.Applied)
	assert.Equal(t, 1, result.Counts.Skipped)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, record.OutcomeSkippedDryRun, result.Outcomes[0].Outcome)

	has, err := repo.HasDecision("POS:a")
	require.NoError(t, err)
	assert.False(t, has)

	// The would-be decision is still reportable.
	decisions := result.Decisions()
	require.Len(t, decisions, 1)
	assert.Equal(t, int64(1), decisions[0].TargetID)
}

func TestRun_DryRunMatchesWriteModeCounts(t *testing.T) {
	seed := func() storage.Repository {
		repo := storage.NewMockRepository()
		seedTarget(t, repo, 1, "205.00", day(2013, time.November, 20))
		seedTarget(t, repo, 2, "774.00", day(2014, time.January, 10))
		return repo
	}
	sources := []*record.SourceRecord{
		source("s1", "a", "205.00", day(2013, time.November, 20)),
		source("s2", "b", "774.00", day(2014, time.January, 13)),
		source("s3", "c", "9999.00", day(2014, time.June, 1)),
	}

	dryRepo := seed()
	dry, err := newPipeline(dryRepo, nil).Run(context.Background(), sources, Options{MinConfidence: 6})
	require.NoError(t, err)

	writeRepo := seed()
	write, err := newPipeline(writeRepo, nil).Run(context.Background(), sources, Options{Apply: true, MinConfidence: 6})
	require.NoError(t, err)

	// Matching is identical in both modes; only the commit differs.
	assert.Equal(t, dry.Counts.Staged, write.Counts.Staged)
	assert.Equal(t, dry.Counts.StrictMatched, write.Counts.StrictMatched)
	assert.Equal(t, dry.Counts.FuzzyMatched, write.Counts.FuzzyMatched)
	assert.Equal(t, dry.Counts.Unmatched, write.Counts.Unmatched)
	assert.Equal(t, 0, dry.Counts.Applied)
	assert.Equal(t, 2, write.Counts.Applied)
}

func TestRun_WriteModePersists(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 1, "205.00", day(2013, time.November, 20))
	p := newPipeline(repo, nil)

	sources := []*record.SourceRecord{source("s1", "a", "205.00", day(2013, time.November, 20))}

	result, err := p.Run(context.Background(), sources, Options{Apply: true, MinConfidence: 6})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Counts.Applied)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, record.OutcomeApplied, result.Outcomes[0].Outcome)

	target, err := repo.GetTarget(1)
	require.NoError(t, err)
	assert.Equal(t, "POS:a", target.ExistingLink)

	persisted, err := repo.ListDecisions(10)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, result.RunID, persisted[0].RunID)
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 1, "205.00", day(2013, time.November, 20))
	p := newPipeline(repo, nil)

	sources := []*record.SourceRecord{source("s1", "a", "205.00", day(2013, time.November, 20))}
	opts := Options{Apply: true, MinConfidence: 6}

	first, err := p.Run(context.Background(), sources, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Counts.Applied)

	// Same input again: the processed guard skips the source before scoring.
	second, err := p.Run(context.Background(), sources, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Counts.Applied)
	assert.Equal(t, 1, second.Counts.Skipped)
	require.Len(t, second.Outcomes, 1)
	assert.Equal(t, record.OutcomeAlreadyApplied, second.Outcomes[0].Outcome)

	persisted, err := repo.ListDecisions(10)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestRun_CompetingSourcesFirstWriterWins(t *testing.T) {
	// Two payments of the same amount on the same date, one deposit record.
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 1, "500.00", day(2024, time.January, 5))
	p := newPipeline(repo, nil)

	sources := []*record.SourceRecord{
		source("s2", "later", "500.00", day(2024, time.January, 5)),
		source("s1", "earlier", "500.00", day(2024, time.January, 5)),
	}

	result, err := p.Run(context.Background(), sources, Options{Apply: true, MinConfidence: 6})
	require.NoError(t, err)

	// Sources are processed in id order, so s1 claims the target.
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "s1", result.Outcomes[0].Result.Source.ID)
	assert.Equal(t, record.OutcomeApplied, result.Outcomes[0].Outcome)
	assert.Equal(t, "s2", result.Outcomes[1].Result.Source.ID)
	assert.Equal(t, record.OutcomeSkippedAlreadyLinked, result.Outcomes[1].Outcome)

	target, err := repo.GetTarget(1)
	require.NoError(t, err)
	assert.Equal(t, "POS:earlier", target.ExistingLink)
}

func TestRun_CompetingSourcesDryRunParity(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 1, "500.00", day(2024, time.January, 5))
	p := newPipeline(repo, nil)

	sources := []*record.SourceRecord{
		source("s1", "earlier", "500.00", day(2024, time.January, 5)),
		source("s2", "later", "500.00", day(2024, time.January, 5)),
	}

	result, err := p.Run(context.Background(), sources, Options{MinConfidence: 6})
	require.NoError(t, err)

	// The claimed set runs in dry mode too, so the conflict is reported the
	// same way a write run would report it.
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, record.OutcomeSkippedDryRun, result.Outcomes[0].Outcome)
	assert.Equal(t, record.OutcomeSkippedAlreadyLinked, result.Outcomes[1].Outcome)
}

func TestRun_BelowThresholdIsSkipped(t *testing.T) {
	repo := storage.NewMockRepository()
	// Exact amount but three days apart: window-stage match, confidence 6.
	seedTarget(t, repo, 1, "100.00", day(2024, time.March, 13))
	p := newPipeline(repo, nil)

	sources := []*record.SourceRecord{source("s1", "a", "100.00", day(2024, time.March, 10))}

	result, err := p.Run(context.Background(), sources, Options{Apply: true, MinConfidence: 8})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Counts.FuzzyMatched)
	assert.Equal(t, 0, result.Counts.Applied)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, record.OutcomeSkippedBelowThreshold, result.Outcomes[0].Outcome)

	has, err := repo.HasDecision("POS:a")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRun_UnmatchedSourceIsCounted(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 1, "42.00", day(2024, time.January, 1))
	p := newPipeline(repo, nil)

	sources := []*record.SourceRecord{source("s1", "a", "9999.99", day(2024, time.June, 1))}

	result, err := p.Run(context.Background(), sources, Options{Apply: true, MinConfidence: 6})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Counts.Unmatched)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, record.OutcomeUnmatched, result.Outcomes[0].Outcome)
	assert.Equal(t, record.UnmatchedNoCandidate, result.Outcomes[0].Result.UnmatchedReason)
}

func TestRun_OverrideForcesLink(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 7, "205.00", day(2021, time.August, 1))
	p := newPipeline(repo, extract.OverrideMap{"a": 7})

	// Far outside every window; only the override can link it. The forced
	// pair carries a single strict signal, so the threshold drops with it.
	sources := []*record.SourceRecord{source("s1", "a", "205.00", day(2021, time.December, 24))}

	result, err := p.Run(context.Background(), sources, Options{Apply: true, MinConfidence: 5})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, record.OutcomeApplied, result.Outcomes[0].Outcome)
	assert.Equal(t, int64(7), result.Outcomes[0].Result.BestTarget.ID)
}

func TestRun_ApplyFailureIsPartial(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 1, "100.00", day(2024, time.January, 5))
	seedTarget(t, repo, 2, "200.00", day(2024, time.January, 5))
	repo.FailApply["POS:bad"] = errors.New("disk I/O error")
	p := newPipeline(repo, nil)

	sources := []*record.SourceRecord{
		source("s1", "bad", "100.00", day(2024, time.January, 5)),
		source("s2", "ok", "200.00", day(2024, time.January, 5)),
	}

	result, err := p.Run(context.Background(), sources, Options{Apply: true, MinConfidence: 6})
	require.NoError(t, err)

	// The failure is recorded and the run continues past it.
	assert.Equal(t, 1, result.Counts.Applied)
	assert.Equal(t, 1, result.Counts.Errored)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "disk I/O error")
	assert.Equal(t, record.OutcomeApplyFailed, result.Outcomes[0].Outcome)
	assert.Equal(t, record.OutcomeApplied, result.Outcomes[1].Outcome)

	run, err := repo.GetRun(result.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "completed_with_errors", run.Status)
}

func TestRun_CancelledContextAborts(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 1, "100.00", day(2024, time.January, 5))
	p := newPipeline(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sources := []*record.SourceRecord{source("s1", "a", "100.00", day(2024, time.January, 5))}

	result, err := p.Run(ctx, sources, Options{Apply: true, MinConfidence: 6})
	require.NoError(t, err)

	assert.Empty(t, result.Outcomes)
	assert.Equal(t, 0, result.Counts.Applied)

	run, err := repo.GetRun(result.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "aborted", run.Status)
}

func TestRun_TargetTableFilter(t *testing.T) {
	repo := storage.NewMockRepository()
	seedTarget(t, repo, 1, "100.00", day(2024, time.January, 5))
	require.NoError(t, repo.SaveTarget(&record.TargetRecord{
		ID:          2,
		TargetTable: record.TargetLedgerLine,
		Amount:      decimal.RequireFromString("100.00"),
		OccurredOn:  day(2024, time.January, 5),
	}))
	p := newPipeline(repo, nil)

	sources := []*record.SourceRecord{source("s1", "a", "100.00", day(2024, time.January, 5))}

	result, err := p.Run(context.Background(), sources, Options{
		Apply:         true,
		MinConfidence: 6,
		TargetTables:  []record.TargetTable{record.TargetLedgerLine},
	})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, record.OutcomeApplied, result.Outcomes[0].Outcome)
	assert.Equal(t, int64(2), result.Outcomes[0].Result.BestTarget.ID)
}
