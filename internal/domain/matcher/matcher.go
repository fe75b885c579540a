// Package matcher produces and scores candidate pairs between source
// records and the indexed target population.
//
// Candidate generation is staged: the exact (amount, date) bucket is probed
// first, the amount bucket with a date window second, and the monetary
// tolerance range last. A stage runs only when the previous one produced
// nothing, so every result is attributable to the cheapest probe that could
// have found it.
package matcher

import (
	"strings"

	"github.com/arrowlimo/arrow-limo-sub003/internal/adapters/extract"
	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

// Score computes the full signal vector between a source record and one
// candidate target. Pure function of its inputs.
func Score(cfg Config, src *record.SourceRecord, target *record.TargetRecord) record.Signals {
	var sig record.Signals

	srcAmt := src.Amount.Abs().Round(2)
	tgtAmt := target.Amount.Abs().Round(2)

	sig.AmountExact = srcAmt.Equal(tgtAmt)
	if !sig.AmountExact {
		diff := srcAmt.Sub(tgtAmt).Abs()
		larger := srcAmt
		if tgtAmt.GreaterThan(larger) {
			larger = tgtAmt
		}
		sig.AmountWithinTolerance = diff.LessThanOrEqual(cfg.amountTolerance(larger))
	}

	sig.DateExact = record.SameDay(src.OccurredOn, target.OccurredOn)
	if sig.DateExact {
		sig.DateWithinWindow = true
	} else {
		sig.DateWithinWindow = record.DayDiff(src.OccurredOn, target.OccurredOn) <= cfg.WindowFor(src.SourceSystem)
	}

	sig.TextOverlapScore = textOverlap(cfg, src.NormalizedText, target.DescriptiveText)
	sig.ReferenceCodeMatch = referenceCodeMatch(src.ReferenceCodes, target.DescriptiveText)

	return sig
}

// textOverlap is the boolean-promoted containment score: 1 when either
// normalized text contains the other, or when any sufficiently long source
// token appears in the candidate's text. No partial credit.
func textOverlap(cfg Config, srcNormalized, targetText string) float64 {
	if srcNormalized == "" || targetText == "" {
		return 0
	}
	targetNormalized := extract.NormalizeText(targetText)
	if targetNormalized == "" {
		return 0
	}
	if extract.ContainsEither(srcNormalized, targetNormalized, cfg.MinOverlapLen) {
		return 1
	}
	for _, tok := range extract.Tokens(srcNormalized) {
		if len(tok) >= cfg.MinOverlapLen && strings.Contains(targetNormalized, tok) {
			return 1
		}
	}
	return 0
}

// referenceCodeMatch reports whether any extracted source reference code
// appears verbatim in the candidate's descriptive text.
func referenceCodeMatch(codes []string, targetText string) bool {
	if len(codes) == 0 || targetText == "" {
		return false
	}
	haystack := strings.ToUpper(targetText)
	for _, code := range codes {
		if strings.Contains(haystack, strings.ToUpper(code)) {
			return true
		}
	}
	return false
}

// pair builds a scored candidate pair.
func pair(cfg Config, src *record.SourceRecord, target *record.TargetRecord, fromExact, fromOverride bool) *record.CandidatePair {
	return &record.CandidatePair{
		Source:       src,
		Target:       target,
		Signals:      Score(cfg, src, target),
		DateDiff:     record.DayDiff(src.OccurredOn, target.OccurredOn),
		FromExact:    fromExact,
		FromOverride: fromOverride,
	}
}
