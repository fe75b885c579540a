package matcher

import (
	"sort"

	"github.com/arrowlimo/arrow-limo-sub003/internal/adapters/extract"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/index"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

// Stage names which probe produced a candidate set.
type Stage string

const (
	StageOverride  Stage = "override"
	StageExact     Stage = "exact"
	StageWindow    Stage = "window"
	StageTolerance Stage = "tolerance"
	StageNone      Stage = "none"
)

// Generator produces the bounded candidate set for each source record.
type Generator struct {
	cfg       Config
	idx       *index.TargetIndex
	overrides extract.OverrideMap

	// rematch includes targets that already carry a link, for explicit
	// re-matching runs.
	rematch bool
}

// NewGenerator creates a candidate generator over a built target index.
func NewGenerator(cfg Config, idx *index.TargetIndex, overrides extract.OverrideMap, rematch bool) *Generator {
	return &Generator{cfg: cfg, idx: idx, overrides: overrides, rematch: rematch}
}

// Candidates returns the ordered, de-duplicated candidate pairs for one
// source record together with the stage that produced them. Linked targets
// are excluded unless the run is an explicit re-match.
func (g *Generator) Candidates(src *record.SourceRecord) ([]*record.CandidatePair, Stage) {
	// Overrides are consulted before heuristic blocking: a forced mapping
	// short-circuits every probe.
	if target := g.overrideTarget(src); target != nil {
		return []*record.CandidatePair{pair(g.cfg, src, target, record.SameDay(src.OccurredOn, target.OccurredOn) && src.Amount.Abs().Round(2).Equal(target.Amount.Abs().Round(2)), true)}, StageOverride
	}

	// Stage 1: exact (amount, date) bucket.
	if targets := g.eligible(g.idx.ByAmountAndDate(src.Amount, src.OccurredOn)); len(targets) > 0 {
		return g.pairs(src, targets, true), StageExact
	}

	// Stage 2: amount bucket within the date window.
	window := g.cfg.WindowFor(src.SourceSystem)
	if targets := g.withinDays(g.eligible(g.idx.ByAmount(src.Amount)), src, window); len(targets) > 0 {
		return g.pairs(src, targets, false), StageWindow
	}

	// Stage 3: monetary tolerance within the extended window.
	tol := g.cfg.amountTolerance(src.Amount)
	lo := src.Amount.Abs().Sub(tol)
	hi := src.Amount.Abs().Add(tol)
	if targets := g.withinDays(g.eligible(g.idx.ByAmountRange(lo, hi)), src, g.cfg.ExtendedWindowDays); len(targets) > 0 {
		return g.pairs(src, targets, false), StageTolerance
	}

	return nil, StageNone
}

// overrideTarget resolves the override mapping for a source record, by
// origin key first, then by the fully qualified idempotency key.
func (g *Generator) overrideTarget(src *record.SourceRecord) *record.TargetRecord {
	if g.overrides == nil {
		return nil
	}
	if id, ok := g.overrides.Lookup(src.OriginKey); ok {
		return g.idx.ByID(id)
	}
	if id, ok := g.overrides.Lookup(src.IdempotencyKey()); ok {
		return g.idx.ByID(id)
	}
	return nil
}

// eligible filters out targets that already carry a link.
func (g *Generator) eligible(targets []*record.TargetRecord) []*record.TargetRecord {
	if g.rematch {
		return targets
	}
	out := targets[:0:0]
	for _, t := range targets {
		if !t.IsLinked() {
			out = append(out, t)
		}
	}
	return out
}

// withinDays keeps targets whose date is within the window of the source.
func (g *Generator) withinDays(targets []*record.TargetRecord, src *record.SourceRecord, days int) []*record.TargetRecord {
	out := targets[:0:0]
	for _, t := range targets {
		if record.DayDiff(src.OccurredOn, t.OccurredOn) <= days {
			out = append(out, t)
		}
	}
	return out
}

// pairs scores a target set and returns it de-duplicated, ordered by target
// id so downstream processing is deterministic.
func (g *Generator) pairs(src *record.SourceRecord, targets []*record.TargetRecord, fromExact bool) []*record.CandidatePair {
	seen := make(map[int64]struct{}, len(targets))
	out := make([]*record.CandidatePair, 0, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, pair(g.cfg, src, t, fromExact, false))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Target.ID < out[j].Target.ID
	})
	return out
}
