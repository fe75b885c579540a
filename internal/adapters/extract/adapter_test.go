package extract

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

func TestAdapter_Normalize(t *testing.T) {
	adapter := NewAdapter(record.SourceBankTransaction, nil)

	rec, err := adapter.Normalize(Row{
		Line: 2,
		Values: map[string]string{
			"transaction date": "2013-11-20",
			"amount":           "$205.00",
			"description":      "E-TRANSFER deposit #R1042",
			"transaction id":   "4481",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, record.SourceBankTransaction, rec.SourceSystem)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("205")))
	assert.Equal(t, time.Date(2013, 11, 20, 0, 0, 0, 0, time.UTC), rec.OccurredOn)
	assert.Equal(t, "E-TRANSFER deposit #R1042", rec.RawText)
	assert.Equal(t, "e transfer deposit r1042", rec.NormalizedText)
	assert.Contains(t, rec.ReferenceCodes, "R1042")
	assert.Equal(t, "4481", rec.OriginKey)
	assert.Equal(t, "BTX:4481", rec.IdempotencyKey())
}

func TestAdapter_Normalize_DebitCreditColumns(t *testing.T) {
	adapter := NewAdapter(record.SourceLegacyDeposit, nil)

	rec, err := adapter.Normalize(Row{
		Line: 3,
		Values: map[string]string{
			"date":           "11/20/2013",
			"deposit":        "500.00",
			"deposit number": "D-77",
		},
	})
	require.NoError(t, err)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("500")))
	assert.Equal(t, "LDP:D-77", rec.IdempotencyKey())
}

func TestAdapter_Normalize_MissingDateIsParseError(t *testing.T) {
	adapter := NewAdapter(record.SourcePOSPayment, nil)

	_, err := adapter.Normalize(Row{
		Line:   5,
		Values: map[string]string{"amount": "10.00"},
	})
	require.Error(t, err)

	pe, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, 5, pe.Line)
	assert.Equal(t, "date", pe.Field)
}

func TestAdapter_Normalize_OriginKeyFallbackIsStable(t *testing.T) {
	adapter := NewAdapter(record.SourceExternalLedger, nil)
	row := Row{
		Line: 9,
		Values: map[string]string{
			"date":   "2024-01-05",
			"amount": "42.00",
		},
	}

	a, err := adapter.Normalize(row)
	require.NoError(t, err)
	b, err := adapter.Normalize(row)
	require.NoError(t, err)

	// No natural id: the composite fallback must be identical across runs
	// so reruns hit the same idempotency key.
	assert.Equal(t, a.IdempotencyKey(), b.IdempotencyKey())
	assert.Equal(t, "20240105-42.00-L9", a.OriginKey)
}

func TestAdapter_NormalizeAll_SkipsAndCounts(t *testing.T) {
	adapter := NewAdapter(record.SourceBankTransaction, nil)

	rows := []Row{
		{Line: 2, Values: map[string]string{"date": "2024-01-05", "amount": "10.00", "id": "a"}},
		{Line: 3, Values: map[string]string{"date": "pending", "amount": "11.00", "id": "b"}},
		{Line: 4, Values: map[string]string{"date": "2024-01-06", "amount": "??", "id": "c"}},
		{Line: 5, Values: map[string]string{"date": "2024-01-07", "amount": "12.00", "id": "d"}},
	}

	records, stats := adapter.NormalizeAll(rows)

	assert.Len(t, records, 2)
	assert.Equal(t, 2, stats.Staged)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.SkipReasons["date"])
	assert.Equal(t, 1, stats.SkipReasons["amount"])
}

func TestAdapter_NormalizeAll_KeepsSkippedRowFields(t *testing.T) {
	adapter := NewAdapter(record.SourceBankTransaction, nil)

	rows := []Row{
		{Line: 2, Values: map[string]string{"date": "pending", "amount": "11.00", "description": "CHQ 004481", "id": "b"}},
		{Line: 3, Values: map[string]string{"date": "2024-01-06", "withdrawal": "??", "description": "noise", "id": "c"}},
	}

	_, stats := adapter.NormalizeAll(rows)

	// The original field values survive the skip so a reviewer can resolve
	// the row by hand.
	require.Len(t, stats.SkippedRows, 2)

	badDate := stats.SkippedRows[0]
	assert.Equal(t, 2, badDate.Line)
	assert.Equal(t, "date", badDate.Field)
	assert.Equal(t, "pending", badDate.Date)
	assert.Equal(t, "11.00", badDate.Amount)
	assert.Equal(t, "CHQ 004481", badDate.Description)
	assert.Equal(t, "b", badDate.OriginKey)

	badAmount := stats.SkippedRows[1]
	assert.Equal(t, "amount", badAmount.Field)
	assert.Equal(t, "??", badAmount.Amount) // pulled from the debit column
	assert.Equal(t, "2024-01-06", badAmount.Date)
}

func TestReadExtract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.csv")
	content := "Date,Description,Withdrawals,Deposits,Reference\n" +
		"2013-11-20,E-TRANSFER SMITH,,205.00,4481\n" +
		"2013-11-21,CHQ 004482,500.00,,4482\n" +
		"bad-date,noise,,1.00,4483\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, stats, err := ReadExtract(path, record.SourceBankTransaction, nil)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, 2, stats.Staged)
	assert.Equal(t, 1, stats.Skipped)

	assert.True(t, records[0].Amount.Equal(decimal.RequireFromString("205")))
	assert.True(t, records[1].Amount.Equal(decimal.RequireFromString("-500")))
	assert.Equal(t, "BTX:4481", records[0].IdempotencyKey())
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.csv")
	content := "source_reference,target_id\nPOS:retainer-9,1042\n4481,77\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	overrides, err := LoadOverrides(path)
	require.NoError(t, err)

	id, ok := overrides.Lookup("POS:retainer-9")
	require.True(t, ok)
	assert.Equal(t, int64(1042), id)

	id, ok = overrides.Lookup("4481")
	require.True(t, ok)
	assert.Equal(t, int64(77), id)

	_, ok = overrides.Lookup("missing")
	assert.False(t, ok)
}
