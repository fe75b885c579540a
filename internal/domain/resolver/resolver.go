// Package resolver reduces a source record's candidate list to a single
// match result. It is the one place that encodes what counts as a
// believable match: the confidence tiers, the minimum signal floor and the
// tie-break rules all live here.
package resolver

import (
	"sort"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/matcher"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

// Config holds the resolver's thresholds and tie-break policy.
type Config struct {
	// KindPreference is the ordered preference over target tables used as
	// the second tie-break. Earlier is preferred.
	KindPreference []record.TargetTable `yaml:"kind_preference"`

	// TieBreakByID selects the smaller target id when date distance and
	// kind preference cannot separate top candidates. When false (the
	// default) such ties are declared ambiguous and routed to review.
	TieBreakByID bool `yaml:"tie_break_by_id"`
}

// DefaultConfig prefers transfer confirmations over reservations over
// generic ledger rows.
func DefaultConfig() Config {
	return Config{
		KindPreference: []record.TargetTable{
			record.TargetTransferRcpt,
			record.TargetReservation,
			record.TargetLedgerLine,
			record.TargetAccountingTxn,
		},
	}
}

// supportSpan is one more than the maximum support-signal count, so one
// strict signal always outranks any number of support signals.
const supportSpan = 5

// Confidence computes the ordinal tier for a signal vector. Strict signals
// (exact amount, exact date) dominate; tolerant and textual signals break
// ties within a strict count. Adding an agreeing signal never lowers the
// tier.
func Confidence(sig record.Signals) int {
	strict := 0
	if sig.AmountExact {
		strict++
	}
	if sig.DateExact {
		strict++
	}

	support := 0
	if sig.AmountWithinTolerance {
		support++
	}
	if sig.DateWithinWindow && !sig.DateExact {
		support++
	}
	if sig.TextOverlapScore >= 1 {
		support++
	}
	if sig.ReferenceCodeMatch {
		support++
	}

	return strict*supportSpan + support
}

// clearsFloor applies the minimum signal floor: amount agreement is
// necessary but never sufficient, however it was obtained. A strong signal
// and at least one non-amount agreeing signal are both required, so a pair
// whose only positive signal is the amount never matches.
func clearsFloor(sig record.Signals) bool {
	if !sig.AmountAgrees() {
		return false
	}
	if !sig.AmountExact && !sig.DateExact && !sig.ReferenceCodeMatch {
		return false
	}
	return sig.DateExact || sig.DateWithinWindow || sig.TextOverlapScore >= 1 || sig.ReferenceCodeMatch
}

// Resolver selects the best candidate per source record.
type Resolver struct {
	cfg      Config
	kindRank map[record.TargetTable]int
}

// New creates a resolver with the given policy.
func New(cfg Config) *Resolver {
	rank := make(map[record.TargetTable]int, len(cfg.KindPreference))
	for i, k := range cfg.KindPreference {
		rank[k] = i
	}
	return &Resolver{cfg: cfg, kindRank: rank}
}

// rankOf returns the preference rank of a target kind; kinds missing from
// the preference order sort after every listed one.
func (r *Resolver) rankOf(t record.TargetTable) int {
	if rank, ok := r.kindRank[t]; ok {
		return rank
	}
	return len(r.kindRank)
}

// Resolve reduces the candidate pairs produced for one source record into
// its MatchResult.
func (r *Resolver) Resolve(src *record.SourceRecord, pairs []*record.CandidatePair, stage matcher.Stage) *record.MatchResult {
	if len(pairs) == 0 {
		return &record.MatchResult{
			Source:          src,
			Pass:            record.PassNone,
			UnmatchedReason: record.UnmatchedNoCandidate,
		}
	}

	best := -1
	for _, p := range pairs {
		if c := Confidence(p.Signals); c > best {
			best = c
		}
	}

	top := make([]*record.CandidatePair, 0, 1)
	for _, p := range pairs {
		if Confidence(p.Signals) == best {
			top = append(top, p)
		}
	}

	winner, tied := r.breakTies(top)
	if winner == nil {
		ids := make([]int64, 0, len(tied))
		for _, p := range tied {
			ids = append(ids, p.Target.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return &record.MatchResult{
			Source:          src,
			Confidence:      best,
			Pass:            record.PassNone,
			UnmatchedReason: record.UnmatchedAmbiguous,
			TiedTargets:     ids,
			NearestMiss:     tied[0].Target,
		}
	}

	// Override-forced pairs bypass the floor: they exist for the cases the
	// heuristics are known to get wrong.
	if !winner.FromOverride && !clearsFloor(winner.Signals) {
		return &record.MatchResult{
			Source:          src,
			Confidence:      best,
			Signals:         winner.Signals,
			SignalsUsed:     winner.Signals.Names(),
			Pass:            record.PassNone,
			UnmatchedReason: record.UnmatchedLowConfidence,
			NearestMiss:     winner.Target,
		}
	}

	pass := record.PassFuzzy
	if winner.FromExact || stage == matcher.StageExact {
		pass = record.PassStrict
	}

	return &record.MatchResult{
		Source:      src,
		BestTarget:  winner.Target,
		Confidence:  best,
		Signals:     winner.Signals,
		SignalsUsed: winner.Signals.Names(),
		Pass:        pass,
	}
}

// breakTies applies the tie-break ladder to the top-tier candidates:
// smaller date distance, then kind preference, then (only when configured)
// smaller target id. Returns nil plus the surviving tie when the ladder
// cannot separate them.
func (r *Resolver) breakTies(top []*record.CandidatePair) (*record.CandidatePair, []*record.CandidatePair) {
	if len(top) == 1 {
		return top[0], nil
	}

	minDiff := top[0].DateDiff
	for _, p := range top[1:] {
		if p.DateDiff < minDiff {
			minDiff = p.DateDiff
		}
	}
	byDate := top[:0:0]
	for _, p := range top {
		if p.DateDiff == minDiff {
			byDate = append(byDate, p)
		}
	}
	if len(byDate) == 1 {
		return byDate[0], nil
	}

	bestRank := r.rankOf(byDate[0].Target.TargetTable)
	for _, p := range byDate[1:] {
		if rank := r.rankOf(p.Target.TargetTable); rank < bestRank {
			bestRank = rank
		}
	}
	byKind := byDate[:0:0]
	for _, p := range byDate {
		if r.rankOf(p.Target.TargetTable) == bestRank {
			byKind = append(byKind, p)
		}
	}
	if len(byKind) == 1 {
		return byKind[0], nil
	}

	if r.cfg.TieBreakByID {
		winner := byKind[0]
		for _, p := range byKind[1:] {
			if p.Target.ID < winner.Target.ID {
				winner = p
			}
		}
		return winner, nil
	}

	return nil, byKind
}
