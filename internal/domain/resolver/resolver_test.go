package resolver

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/matcher"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func source(id string) *record.SourceRecord {
	return &record.SourceRecord{
		ID:           id,
		SourceSystem: record.SourcePOSPayment,
		Amount:       decimal.RequireFromString("205.00"),
		OccurredOn:   day(2013, 11, 20),
		OriginKey:    id,
	}
}

func candidate(targetID int64, table record.TargetTable, sig record.Signals, dateDiff int, fromExact bool) *record.CandidatePair {
	return &record.CandidatePair{
		Source: source("p1"),
		Target: &record.TargetRecord{
			ID:          targetID,
			TargetTable: table,
			Amount:      decimal.RequireFromString("205.00"),
			OccurredOn:  day(2013, 11, 20),
		},
		Signals:   sig,
		DateDiff:  dateDiff,
		FromExact: fromExact,
	}
}

func TestConfidence_StrictDominatesSupport(t *testing.T) {
	// Both exact signals must outrank any pile of tolerant ones.
	bothExact := record.Signals{AmountExact: true, DateExact: true, DateWithinWindow: true}
	allTolerant := record.Signals{
		AmountWithinTolerance: true,
		DateWithinWindow:      true,
		TextOverlapScore:      1,
		ReferenceCodeMatch:    true,
	}
	assert.Greater(t, Confidence(bothExact), Confidence(allTolerant))

	oneExact := record.Signals{AmountExact: true, DateWithinWindow: true}
	assert.Greater(t, Confidence(oneExact), Confidence(allTolerant))
}

func TestConfidence_Monotonic(t *testing.T) {
	// Adding any single agreeing signal never lowers the tier.
	base := record.Signals{AmountExact: true, DateWithinWindow: true}
	baseline := Confidence(base)

	withText := base
	withText.TextOverlapScore = 1
	assert.GreaterOrEqual(t, Confidence(withText), baseline)

	withRef := base
	withRef.ReferenceCodeMatch = true
	assert.GreaterOrEqual(t, Confidence(withRef), baseline)

	withDate := base
	withDate.DateExact = true
	assert.GreaterOrEqual(t, Confidence(withDate), baseline)
}

func TestResolve_NoCandidates(t *testing.T) {
	r := New(DefaultConfig())

	res := r.Resolve(source("p1"), nil, matcher.StageNone)

	assert.False(t, res.Matched())
	assert.Equal(t, record.PassNone, res.Pass)
	assert.Equal(t, record.UnmatchedNoCandidate, res.UnmatchedReason)
}

func TestResolve_PicksTopTier(t *testing.T) {
	r := New(DefaultConfig())

	strong := candidate(1, record.TargetReservation,
		record.Signals{AmountExact: true, DateExact: true, DateWithinWindow: true}, 0, true)
	weak := candidate(2, record.TargetReservation,
		record.Signals{AmountExact: true, DateWithinWindow: true}, 3, true)

	res := r.Resolve(source("p1"), []*record.CandidatePair{weak, strong}, matcher.StageExact)

	require.True(t, res.Matched())
	assert.Equal(t, int64(1), res.BestTarget.ID)
	assert.Equal(t, record.PassStrict, res.Pass)
	assert.Contains(t, res.SignalsUsed, "amount_exact")
	assert.Contains(t, res.SignalsUsed, "date_exact")
}

func TestResolve_FloorRequiresStrongSignal(t *testing.T) {
	r := New(DefaultConfig())

	// Amount tolerance plus a date window is never believable on its own.
	weak := candidate(1, record.TargetReservation,
		record.Signals{AmountWithinTolerance: true, DateWithinWindow: true, TextOverlapScore: 1}, 3, false)

	res := r.Resolve(source("p1"), []*record.CandidatePair{weak}, matcher.StageTolerance)

	assert.False(t, res.Matched())
	assert.Equal(t, record.UnmatchedLowConfidence, res.UnmatchedReason)
	require.NotNil(t, res.NearestMiss)
	assert.Equal(t, int64(1), res.NearestMiss.ID)
}

func TestResolve_AmountAloneIsNeverSufficient(t *testing.T) {
	r := New(DefaultConfig())

	// An exact amount with nothing else agreeing: a tolerance-stage probe far
	// outside the date window, no text, no reference code.
	pair := candidate(1, record.TargetLedgerLine, record.Signals{AmountExact: true}, 117, false)

	res := r.Resolve(source("p1"), []*record.CandidatePair{pair}, matcher.StageTolerance)

	assert.False(t, res.Matched())
	assert.Equal(t, record.PassNone, res.Pass)
	assert.Equal(t, record.UnmatchedLowConfidence, res.UnmatchedReason)
	require.NotNil(t, res.NearestMiss)
	assert.Equal(t, int64(1), res.NearestMiss.ID)
}

func TestResolve_AmountAgreementIsNecessary(t *testing.T) {
	r := New(DefaultConfig())

	// A date and reference hit without amount agreement never matches.
	pair := candidate(1, record.TargetReservation,
		record.Signals{DateExact: true, DateWithinWindow: true, ReferenceCodeMatch: true}, 0, false)

	res := r.Resolve(source("p1"), []*record.CandidatePair{pair}, matcher.StageWindow)

	assert.False(t, res.Matched())
	assert.Equal(t, record.UnmatchedLowConfidence, res.UnmatchedReason)
}

func TestResolve_OverrideBypassesFloor(t *testing.T) {
	r := New(DefaultConfig())

	forced := candidate(42, record.TargetReservation, record.Signals{DateWithinWindow: true}, 140, false)
	forced.FromOverride = true

	res := r.Resolve(source("p1"), []*record.CandidatePair{forced}, matcher.StageOverride)

	require.True(t, res.Matched())
	assert.Equal(t, int64(42), res.BestTarget.ID)
	assert.Equal(t, record.PassFuzzy, res.Pass)
}

func TestResolve_TieBreakBySmallerDateDiff(t *testing.T) {
	r := New(DefaultConfig())
	sig := record.Signals{AmountExact: true, DateWithinWindow: true}

	near := candidate(5, record.TargetReservation, sig, 1, false)
	far := candidate(2, record.TargetReservation, sig, 4, false)

	res := r.Resolve(source("p1"), []*record.CandidatePair{far, near}, matcher.StageWindow)

	require.True(t, res.Matched())
	assert.Equal(t, int64(5), res.BestTarget.ID)
}

func TestResolve_TieBreakByKindPreference(t *testing.T) {
	r := New(DefaultConfig())
	sig := record.Signals{AmountExact: true, DateExact: true, DateWithinWindow: true}

	ledger := candidate(1, record.TargetLedgerLine, sig, 0, true)
	transfer := candidate(2, record.TargetTransferRcpt, sig, 0, true)

	res := r.Resolve(source("p1"), []*record.CandidatePair{ledger, transfer}, matcher.StageExact)

	require.True(t, res.Matched())
	assert.Equal(t, int64(2), res.BestTarget.ID)
}

func TestResolve_UnbreakableTieIsAmbiguous(t *testing.T) {
	r := New(DefaultConfig())
	sig := record.Signals{AmountExact: true, DateExact: true, DateWithinWindow: true}

	a := candidate(7, record.TargetReservation, sig, 0, true)
	b := candidate(3, record.TargetReservation, sig, 0, true)

	res := r.Resolve(source("p1"), []*record.CandidatePair{a, b}, matcher.StageExact)

	assert.False(t, res.Matched())
	assert.Equal(t, record.UnmatchedAmbiguous, res.UnmatchedReason)
	assert.Equal(t, []int64{3, 7}, res.TiedTargets)
}

func TestResolve_TieBreakByIDWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TieBreakByID = true
	r := New(cfg)
	sig := record.Signals{AmountExact: true, DateExact: true, DateWithinWindow: true}

	a := candidate(7, record.TargetReservation, sig, 0, true)
	b := candidate(3, record.TargetReservation, sig, 0, true)

	res := r.Resolve(source("p1"), []*record.CandidatePair{a, b}, matcher.StageExact)

	require.True(t, res.Matched())
	assert.Equal(t, int64(3), res.BestTarget.ID)
}

func TestResolve_FuzzyPassFromWindowStage(t *testing.T) {
	r := New(DefaultConfig())
	sig := record.Signals{AmountExact: true, DateWithinWindow: true}

	pair := candidate(1, record.TargetReservation, sig, 3, false)
	res := r.Resolve(source("p1"), []*record.CandidatePair{pair}, matcher.StageWindow)

	require.True(t, res.Matched())
	assert.Equal(t, record.PassFuzzy, res.Pass)
}
