// Package index builds the blocking indexes over the candidate target
// population. The indexes are built once per run and read-only afterwards;
// they are what keeps candidate comparison near-linear instead of
// quadratic.
package index

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

// TargetIndex holds the per-run blocking lookups over the target
// population: by rounded amount, and by rounded amount plus calendar date.
type TargetIndex struct {
	byAmount     map[string][]*record.TargetRecord
	byAmountDate map[string][]*record.TargetRecord
	byID         map[int64]*record.TargetRecord

	// sorted unique amounts, for tolerance range probes
	amountEntries []amountEntry

	all []*record.TargetRecord
}

type amountEntry struct {
	amount  decimal.Decimal
	targets []*record.TargetRecord
}

// amountKey rounds an amount to the currency minor unit and renders the
// blocking key. Magnitude only: sign conventions differ between systems and
// are a scoring concern, not a blocking concern.
func amountKey(amount decimal.Decimal) string {
	return amount.Abs().Round(2).StringFixed(2)
}

// amountDateKey combines the rounded amount with the calendar date.
func amountDateKey(amount decimal.Decimal, date time.Time) string {
	return amountKey(amount) + "@" + date.Format("2006-01-02")
}

// Build constructs the index over the full target population for a run.
func Build(targets []*record.TargetRecord) *TargetIndex {
	idx := &TargetIndex{
		byAmount:     make(map[string][]*record.TargetRecord),
		byAmountDate: make(map[string][]*record.TargetRecord),
		byID:         make(map[int64]*record.TargetRecord, len(targets)),
		all:          targets,
	}

	amounts := make(map[string]*amountEntry)
	for _, t := range targets {
		idx.byID[t.ID] = t
		ak := amountKey(t.Amount)
		idx.byAmount[ak] = append(idx.byAmount[ak], t)
		adk := amountDateKey(t.Amount, t.OccurredOn)
		idx.byAmountDate[adk] = append(idx.byAmountDate[adk], t)

		if e, ok := amounts[ak]; ok {
			e.targets = append(e.targets, t)
		} else {
			amounts[ak] = &amountEntry{amount: t.Amount.Abs().Round(2), targets: []*record.TargetRecord{t}}
		}
	}

	idx.amountEntries = make([]amountEntry, 0, len(amounts))
	for _, e := range amounts {
		idx.amountEntries = append(idx.amountEntries, *e)
	}
	sort.Slice(idx.amountEntries, func(i, j int) bool {
		return idx.amountEntries[i].amount.LessThan(idx.amountEntries[j].amount)
	})

	return idx
}

// ByAmountAndDate returns the targets in the exact (amount, date) bucket.
func (idx *TargetIndex) ByAmountAndDate(amount decimal.Decimal, date time.Time) []*record.TargetRecord {
	return idx.byAmountDate[amountDateKey(amount, date)]
}

// ByAmount returns the targets in the rounded-amount bucket.
func (idx *TargetIndex) ByAmount(amount decimal.Decimal) []*record.TargetRecord {
	return idx.byAmount[amountKey(amount)]
}

// ByAmountRange returns targets whose rounded amount lies in
// [min, max] inclusive, using the sorted amount entries.
func (idx *TargetIndex) ByAmountRange(min, max decimal.Decimal) []*record.TargetRecord {
	start := sort.Search(len(idx.amountEntries), func(i int) bool {
		return idx.amountEntries[i].amount.GreaterThanOrEqual(min)
	})

	var out []*record.TargetRecord
	for i := start; i < len(idx.amountEntries); i++ {
		if idx.amountEntries[i].amount.GreaterThan(max) {
			break
		}
		out = append(out, idx.amountEntries[i].targets...)
	}
	return out
}

// All returns the full indexed population.
func (idx *TargetIndex) All() []*record.TargetRecord {
	return idx.all
}

// ByID finds a target by id. Used by the override path.
func (idx *TargetIndex) ByID(id int64) *record.TargetRecord {
	return idx.byID[id]
}

// Stats describes the shape of a built index.
type Stats struct {
	Targets       int
	UniqueAmounts int
	UniqueBuckets int
}

// Stats returns counts describing the built index.
func (idx *TargetIndex) Stats() Stats {
	return Stats{
		Targets:       len(idx.all),
		UniqueAmounts: len(idx.amountEntries),
		UniqueBuckets: len(idx.byAmountDate),
	}
}
