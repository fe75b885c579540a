// Package extract normalizes heterogeneous input rows (bank transactions,
// point-of-sale payments, external-ledger exports, legacy deposits, email
// receipts) into canonical source records.
//
// Adapters are pure transforms: a row either becomes a SourceRecord or is
// skipped with a counted ParseError. A bad row never aborts its extract.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

// ParseError reports a row that could not be normalized.
type ParseError struct {
	Line   int
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
}

// headerAliases maps canonical field names to the column headings the
// various systems use, matched case-insensitively.
var headerAliases = map[string][]string{
	"date":        {"date", "transaction date", "payment date", "posted date", "occurred on", "received"},
	"amount":      {"amount", "payment amount", "total", "net amount", "gross sales"},
	"debit":       {"debit", "withdrawal", "withdrawals", "funds out"},
	"credit":      {"credit", "deposit", "deposits", "funds in"},
	"description": {"description", "memo", "details", "narrative", "subject", "payer", "notes"},
	"origin_key":  {"id", "payment id", "transaction id", "txn id", "reference", "uid", "receipt number", "deposit number"},
}

// Row is one raw extract row keyed by lowercased header name.
type Row struct {
	Line   int
	Values map[string]string
}

// Get resolves a canonical field against the row's headers.
func (r Row) Get(field string) string {
	for _, alias := range headerAliases[field] {
		if v, ok := r.Values[alias]; ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// SkippedRow preserves the original field values of a row that failed to
// normalize, so the exception report can surface it for manual entry.
type SkippedRow struct {
	Line        int
	Field       string
	Reason      string
	Date        string
	Amount      string
	Description string
	OriginKey   string
}

// Stats counts what an adapter run did. Skips are counted per reason and
// kept with their original field values so the exception report can say why
// rows were dropped and what was in them.
type Stats struct {
	Staged      int
	Skipped     int
	SkipReasons map[string]int
	SkippedRows []SkippedRow
}

func newStats() *Stats {
	return &Stats{SkipReasons: make(map[string]int)}
}

func (s *Stats) skip(row Row, pe *ParseError) {
	s.Skipped++
	s.SkipReasons[pe.Field]++

	amount := row.Get("amount")
	if amount == "" {
		if debit := row.Get("debit"); debit != "" {
			amount = debit
		} else {
			amount = row.Get("credit")
		}
	}
	s.SkippedRows = append(s.SkippedRows, SkippedRow{
		Line:        pe.Line,
		Field:       pe.Field,
		Reason:      pe.Reason,
		Date:        row.Get("date"),
		Amount:      amount,
		Description: row.Get("description"),
		OriginKey:   row.Get("origin_key"),
	})
}

// Adapter normalizes rows from one source system.
type Adapter struct {
	system record.SourceSystem
	logger *slog.Logger
}

// NewAdapter creates an adapter for the given source system.
func NewAdapter(system record.SourceSystem, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{system: system, logger: logger}
}

// Normalize turns one raw row into a SourceRecord. The returned error is a
// *ParseError when the row should be skipped and counted.
func (a *Adapter) Normalize(row Row) (*record.SourceRecord, error) {
	dateRaw := row.Get("date")
	occurredOn, err := ParseDate(dateRaw)
	if err != nil {
		return nil, &ParseError{Line: row.Line, Field: "date", Reason: err.Error()}
	}

	amountRaw := row.Get("amount")
	var amount decimal.Decimal
	if amountRaw != "" {
		amount, err = ParseAmount(amountRaw)
	} else {
		amount, err = CombineDebitCredit(row.Get("debit"), row.Get("credit"))
	}
	if err != nil {
		return nil, &ParseError{Line: row.Line, Field: "amount", Reason: err.Error()}
	}

	raw := row.Get("description")
	normalized := NormalizeText(raw)

	originKey := row.Get("origin_key")
	if originKey == "" {
		// Stable composite fallback for systems that export no natural id.
		originKey = fmt.Sprintf("%s-%s-L%d", occurredOn.Format("20060102"), amount.StringFixed(2), row.Line)
	}

	return &record.SourceRecord{
		ID:             fmt.Sprintf("%s:%s", a.system.KeyPrefix(), originKey),
		SourceSystem:   a.system,
		Amount:         amount,
		OccurredOn:     occurredOn,
		RawText:        raw,
		NormalizedText: normalized,
		ReferenceCodes: ExtractReferenceCodes(raw),
		OriginKey:      originKey,
	}, nil
}

// NormalizeAll runs Normalize over a batch of rows, skipping and counting
// rows that fail to parse.
func (a *Adapter) NormalizeAll(rows []Row) ([]*record.SourceRecord, *Stats) {
	stats := newStats()
	out := make([]*record.SourceRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := a.Normalize(row)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				pe = &ParseError{Line: row.Line, Field: "unknown", Reason: err.Error()}
			}
			a.logger.Warn("Skipping unparseable row",
				"system", a.system.String(),
				"line", pe.Line,
				"field", pe.Field,
				"reason", pe.Reason,
			)
			stats.skip(row, pe)
			continue
		}
		out = append(out, rec)
		stats.Staged++
	}
	return out, stats
}
