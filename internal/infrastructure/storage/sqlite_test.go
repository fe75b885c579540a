package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTarget(t *testing.T, s *Storage, id int64, table record.TargetTable, amount string, on time.Time) {
	t.Helper()
	require.NoError(t, s.SaveTarget(&record.TargetRecord{
		ID:              id,
		TargetTable:     table,
		Amount:          decimal.RequireFromString(amount),
		OccurredOn:      on,
		DescriptiveText: "seeded",
	}))
}

func decision(key string, targetID int64) *record.LinkageDecision {
	return &record.LinkageDecision{
		IdempotencyKey: key,
		SourceID:       key,
		SourceSystem:   record.SourcePOSPayment,
		OriginKey:      key,
		TargetID:       targetID,
		TargetTable:    record.TargetReservation,
		Amount:         decimal.RequireFromString("205.00"),
		Confidence:     10,
		Pass:           record.PassStrict,
		RunID:          1,
	}
}

func TestTargetRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	on := time.Date(2013, 11, 20, 0, 0, 0, 0, time.UTC)
	seedTarget(t, s, 1, record.TargetReservation, "205.00", on)
	seedTarget(t, s, 2, record.TargetLedgerLine, "774.00", on)

	all, err := s.ListTargets(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Amount.Equal(decimal.RequireFromString("205")))
	assert.True(t, all[0].OccurredOn.Equal(on))

	filtered, err := s.ListTargets([]record.TargetTable{record.TargetLedgerLine})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(2), filtered[0].ID)

	one, err := s.GetTarget(1)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, record.TargetReservation, one.TargetTable)

	missing, err := s.GetTarget(99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestApplyDecision_Idempotent(t *testing.T) {
	s := newTestStorage(t)
	seedTarget(t, s, 1, record.TargetReservation, "205.00", time.Date(2013, 11, 20, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.ApplyDecision(decision("POS:a", 1)))

	// Same idempotency key again: no-op, reported as duplicate.
	err := s.ApplyDecision(decision("POS:a", 1))
	assert.ErrorIs(t, err, ErrDuplicateDecision)

	has, err := s.HasDecision("POS:a")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestApplyDecision_AtMostOneLink(t *testing.T) {
	s := newTestStorage(t)
	seedTarget(t, s, 1, record.TargetReservation, "500.00", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.ApplyDecision(decision("POS:first", 1)))

	// A different source claiming the same target fails the re-check and
	// rolls back without touching the committed decision.
	err := s.ApplyDecision(decision("POS:second", 1))
	assert.ErrorIs(t, err, ErrAlreadyLinked)

	has, err := s.HasDecision("POS:second")
	require.NoError(t, err)
	assert.False(t, has)

	target, err := s.GetTarget(1)
	require.NoError(t, err)
	assert.Equal(t, "POS:first", target.ExistingLink)
}

func TestApplyDecision_MarksTargetLinked(t *testing.T) {
	s := newTestStorage(t)
	seedTarget(t, s, 1, record.TargetReservation, "205.00", time.Date(2013, 11, 20, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.ApplyDecision(decision("BTX:4481", 1)))

	target, err := s.GetTarget(1)
	require.NoError(t, err)
	assert.Equal(t, "BTX:4481", target.ExistingLink)
	assert.True(t, target.IsLinked())
}

func TestListDecisionsAndByRun(t *testing.T) {
	s := newTestStorage(t)
	on := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	seedTarget(t, s, 1, record.TargetReservation, "10.00", on)
	seedTarget(t, s, 2, record.TargetReservation, "20.00", on)

	d1 := decision("POS:a", 1)
	d2 := decision("POS:b", 2)
	d2.RunID = 2
	require.NoError(t, s.ApplyDecision(d1))
	require.NoError(t, s.ApplyDecision(d2))

	recent, err := s.ListDecisions(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "POS:b", recent[0].IdempotencyKey) // newest first

	byRun, err := s.DecisionsByRun(2)
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	assert.Equal(t, "POS:b", byRun[0].IdempotencyKey)
}

func TestDecisionStats(t *testing.T) {
	s := newTestStorage(t)
	on := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	seedTarget(t, s, 1, record.TargetReservation, "100.00", on)
	seedTarget(t, s, 2, record.TargetReservation, "50.00", on)

	d1 := decision("POS:a", 1)
	d1.Amount = decimal.RequireFromString("100.00")
	d2 := decision("BTX:b", 2)
	d2.SourceSystem = record.SourceBankTransaction
	d2.Amount = decimal.RequireFromString("50.00")
	d2.Pass = record.PassFuzzy
	require.NoError(t, s.ApplyDecision(d1))
	require.NoError(t, s.ApplyDecision(d2))

	stats, err := s.DecisionStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDecisions)
	assert.InDelta(t, 150.0, stats.TotalAmount, 0.001)
	assert.Equal(t, 1, stats.StrictCount)
	assert.Equal(t, 1, stats.FuzzyCount)

	pos := stats.BySystem["pos_payment"]
	assert.Equal(t, 1, pos.Count)
	assert.Equal(t, 1, pos.StrictCount)
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStorage(t)

	runID, err := s.StartRun(true, 6)
	require.NoError(t, err)
	require.Greater(t, runID, int64(0))

	counts := RunCounts{Staged: 10, StrictMatched: 6, FuzzyMatched: 2, Unmatched: 2, Applied: 0, Skipped: 8}
	require.NoError(t, s.CompleteRun(runID, counts, "completed"))

	run, err := s.GetRun(runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.DryRun)
	assert.Equal(t, 6, run.MinConfidence)
	assert.Equal(t, 10, run.Staged)
	assert.Equal(t, "completed", run.Status)
	assert.NotEmpty(t, run.CompletedAt)

	runs, err := s.ListRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)

	missing, err := s.GetRun(999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
