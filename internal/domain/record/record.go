// Package record defines the canonical records the reconciliation engine
// operates on. Source records are normalized once at adapter time and are
// immutable afterwards; target records are read-only except for the link
// back-reference the applier sets.
package record

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SourceSystem identifies the origin of a source record.
type SourceSystem string

const (
	SourcePOSPayment      SourceSystem = "pos_payment"
	SourceBankTransaction SourceSystem = "bank_transaction"
	SourceLegacyDeposit   SourceSystem = "legacy_deposit"
	SourceExternalLedger  SourceSystem = "external_ledger_row"
	SourceEmailReceipt    SourceSystem = "email_receipt"
)

// String returns the string representation of the source system.
func (s SourceSystem) String() string {
	return string(s)
}

// IsValid checks whether the source system is one of the supported origins.
func (s SourceSystem) IsValid() bool {
	switch s {
	case SourcePOSPayment, SourceBankTransaction, SourceLegacyDeposit,
		SourceExternalLedger, SourceEmailReceipt:
		return true
	}
	return false
}

// KeyPrefix returns the idempotency-key prefix for the source system.
func (s SourceSystem) KeyPrefix() string {
	switch s {
	case SourcePOSPayment:
		return "POS"
	case SourceBankTransaction:
		return "BTX"
	case SourceLegacyDeposit:
		return "LDP"
	case SourceExternalLedger:
		return "ELR"
	case SourceEmailReceipt:
		return "ETR"
	}
	return "SRC"
}

// TargetTable names the destination entity type a source record may link to.
type TargetTable string

const (
	TargetReservation   TargetTable = "reservation"
	TargetLedgerLine    TargetTable = "ledger_line"
	TargetAccountingTxn TargetTable = "accounting_transaction"
	TargetTransferRcpt  TargetTable = "transfer_confirmation"
)

func (t TargetTable) String() string {
	return string(t)
}

// IsValid checks whether the target table is one of the supported kinds.
func (t TargetTable) IsValid() bool {
	switch t {
	case TargetReservation, TargetLedgerLine, TargetAccountingTxn, TargetTransferRcpt:
		return true
	}
	return false
}

// SourceRecord is a normalized input record from any supported origin.
type SourceRecord struct {
	ID             string          `json:"id"`
	SourceSystem   SourceSystem    `json:"source_system"`
	Amount         decimal.Decimal `json:"amount"`
	OccurredOn     time.Time       `json:"occurred_on"`
	RawText        string          `json:"raw_text"`
	NormalizedText string          `json:"normalized_text"`
	ReferenceCodes []string        `json:"reference_codes"`
	OriginKey      string          `json:"origin_key"`
}

// IdempotencyKey returns the stable key that identifies any decision made
// for this record across reruns, e.g. "BTX:4481" for a bank transaction.
func (s *SourceRecord) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", s.SourceSystem.KeyPrefix(), s.OriginKey)
}

// HasReferenceCode reports whether the given code was extracted from the
// record's raw text.
func (s *SourceRecord) HasReferenceCode(code string) bool {
	for _, c := range s.ReferenceCodes {
		if c == code {
			return true
		}
	}
	return false
}

// TargetRecord is one row of the candidate population a source record may
// link to.
type TargetRecord struct {
	ID              int64           `json:"id"`
	TargetTable     TargetTable     `json:"target_table"`
	Amount          decimal.Decimal `json:"amount"`
	OccurredOn      time.Time       `json:"occurred_on"`
	DescriptiveText string          `json:"descriptive_text"`
	ExistingLink    string          `json:"existing_link,omitempty"`
}

// IsLinked reports whether the target already carries a link.
func (t *TargetRecord) IsLinked() bool {
	return t.ExistingLink != ""
}

// Signals is the vector of independent match signals between one source
// record and one candidate target.
type Signals struct {
	AmountExact           bool    `json:"amount_exact"`
	AmountWithinTolerance bool    `json:"amount_within_tolerance"`
	DateExact             bool    `json:"date_exact"`
	DateWithinWindow      bool    `json:"date_within_window"`
	TextOverlapScore      float64 `json:"text_overlap_score"`
	ReferenceCodeMatch    bool    `json:"reference_code_match"`
}

// AmountAgrees reports whether the pair agrees on amount at all, exactly or
// within tolerance.
func (s Signals) AmountAgrees() bool {
	return s.AmountExact || s.AmountWithinTolerance
}

// Names lists the positive signals in a fixed order, for reporting.
func (s Signals) Names() []string {
	var names []string
	if s.AmountExact {
		names = append(names, "amount_exact")
	}
	if s.AmountWithinTolerance {
		names = append(names, "amount_within_tolerance")
	}
	if s.DateExact {
		names = append(names, "date_exact")
	}
	if s.DateWithinWindow {
		names = append(names, "date_within_window")
	}
	if s.TextOverlapScore >= 1 {
		names = append(names, "text_overlap")
	}
	if s.ReferenceCodeMatch {
		names = append(names, "reference_code_match")
	}
	return names
}

// CandidatePair is an ephemeral scored pairing produced and consumed within
// one matching pass.
type CandidatePair struct {
	Source       *SourceRecord
	Target       *TargetRecord
	Signals      Signals
	DateDiff     int  // absolute calendar-day difference
	FromExact    bool // produced by the exact (amount, date) probe
	FromOverride bool // forced by the override mapping
}

// Pass records which matching stage produced a result.
type Pass string

const (
	PassStrict Pass = "strict"
	PassFuzzy  Pass = "fuzzy"
	PassNone   Pass = "none"
)

// UnmatchedReason says why a source record produced no link.
type UnmatchedReason string

const (
	UnmatchedNoCandidate   UnmatchedReason = "no_candidate"
	UnmatchedLowConfidence UnmatchedReason = "low_confidence"
	UnmatchedAmbiguous     UnmatchedReason = "ambiguous"
)

// MatchResult is the per-source outcome of one run.
type MatchResult struct {
	Source          *SourceRecord
	BestTarget      *TargetRecord // nil when unmatched
	Confidence      int
	SignalsUsed     []string
	Signals         Signals
	Pass            Pass
	UnmatchedReason UnmatchedReason // empty when matched
	TiedTargets     []int64         // populated on ambiguity, in id order

	// NearestMiss is the top-scoring candidate of an unmatched result, kept
	// so the exception report can show the reviewer what almost matched.
	NearestMiss *TargetRecord
}

// Matched reports whether the result selected a target.
func (m *MatchResult) Matched() bool {
	return m.BestTarget != nil && m.Pass != PassNone
}

// Outcome is the terminal state a source record reaches after the apply
// stage.
type Outcome string

const (
	OutcomeApplied               Outcome = "applied"
	OutcomeSkippedDryRun         Outcome = "skipped_dry_run"
	OutcomeSkippedAlreadyLinked  Outcome = "skipped_already_linked"
	OutcomeSkippedBelowThreshold Outcome = "skipped_below_threshold"
	OutcomeAlreadyApplied        Outcome = "already_applied"
	OutcomeApplyFailed           Outcome = "apply_failed"
	OutcomeUnmatched             Outcome = "unmatched"
)

// LinkageDecision is the durable record of an accepted link.
type LinkageDecision struct {
	ID             int64           `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	SourceID       string          `json:"source_id"`
	SourceSystem   SourceSystem    `json:"source_system"`
	OriginKey      string          `json:"origin_key"`
	TargetID       int64           `json:"target_id"`
	TargetTable    TargetTable     `json:"target_table"`
	Amount         decimal.Decimal `json:"amount"`
	Confidence     int             `json:"confidence"`
	Pass           Pass            `json:"pass"`
	RunID          int64           `json:"run_id"`
	AppliedAt      time.Time       `json:"applied_at"`
}

// DayDiff returns the absolute calendar-day difference between two dates.
// Both are normalized to midnight UTC first so clock components never leak
// into the distance.
func DayDiff(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := int(au.Sub(bu).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
