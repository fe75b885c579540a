package extract

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount normalizes the textual amount representations that show up in
// real extracts: currency symbols, thousands separators, parentheses or a
// trailing minus for negatives. The result is rounded to the currency minor
// unit.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = s[:len(s)-1]
	}
	// A leading minus has to come off before the currency symbol, "-$12.34"
	// being the usual spelling.
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	s = strings.TrimSpace(strings.TrimSuffix(s, "CAD"))
	s = strings.TrimSpace(strings.TrimSuffix(s, "USD"))

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d.Round(2), nil
}

// CombineDebitCredit collapses separate debit/credit columns into one signed
// amount. Debits come out negative, credits positive. Exactly one of the two
// columns must carry a value.
func CombineDebitCredit(debit, credit string) (decimal.Decimal, error) {
	debit = strings.TrimSpace(debit)
	credit = strings.TrimSpace(credit)

	switch {
	case debit != "" && credit != "":
		return decimal.Zero, fmt.Errorf("row carries both debit %q and credit %q", debit, credit)
	case debit != "":
		d, err := ParseAmount(debit)
		if err != nil {
			return decimal.Zero, err
		}
		return d.Abs().Neg(), nil
	case credit != "":
		c, err := ParseAmount(credit)
		if err != nil {
			return decimal.Zero, err
		}
		return c.Abs(), nil
	default:
		return decimal.Zero, fmt.Errorf("row carries neither debit nor credit")
	}
}
