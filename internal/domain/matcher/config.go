package matcher

import (
	"github.com/shopspring/decimal"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

// Config holds the matching tolerances. Confidence thresholds and tie-break
// policy live in the resolver, not here.
type Config struct {
	// AmountToleranceCents is the fixed absolute tolerance, in cents.
	AmountToleranceCents int64 `yaml:"amount_tolerance_cents"`

	// AmountTolerancePct is the relative tolerance against the larger
	// amount, in percent.
	AmountTolerancePct float64 `yaml:"amount_tolerance_pct"`

	// DateWindowDays is the stage-two window around the source date.
	DateWindowDays int `yaml:"date_window_days"`

	// ExtendedWindowDays is the stage-three window used with monetary
	// tolerance, sized for cross-border clearing delays.
	ExtendedWindowDays int `yaml:"extended_window_days"`

	// SourceWindows narrows or widens the date window per source system.
	// E-transfer style payments clear faster than generic banking.
	SourceWindows map[record.SourceSystem]int `yaml:"source_windows"`

	// MinOverlapLen is the minimum rune length for a text fragment to count
	// as containment overlap. Short strings over-fit.
	MinOverlapLen int `yaml:"min_overlap_len"`
}

// DefaultConfig returns the tolerances used for same-week reconciliation.
func DefaultConfig() Config {
	return Config{
		AmountToleranceCents: 100,
		AmountTolerancePct:   5.0,
		DateWindowDays:       7,
		ExtendedWindowDays:   180,
		SourceWindows: map[record.SourceSystem]int{
			record.SourceEmailReceipt: 3,
		},
		MinOverlapLen: 4,
	}
}

// WindowFor returns the date window for a source system.
func (c Config) WindowFor(system record.SourceSystem) int {
	if w, ok := c.SourceWindows[system]; ok && w > 0 {
		return w
	}
	return c.DateWindowDays
}

// amountTolerance computes the tolerance band for one source amount: the
// fixed cent tolerance or the relative percentage of the amount, whichever
// is larger.
func (c Config) amountTolerance(amount decimal.Decimal) decimal.Decimal {
	cents := decimal.New(c.AmountToleranceCents, -2)
	pct := amount.Abs().Mul(decimal.NewFromFloat(c.AmountTolerancePct)).Div(decimal.NewFromInt(100))
	if pct.GreaterThan(cents) {
		return pct
	}
	return cents
}
