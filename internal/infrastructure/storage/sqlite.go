// Package storage provides SQLite access to the target store: the candidate
// target population, the linkage decisions and the run history.
package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

const dateLayout = "2006-01-02"

// Storage provides SQLite database access for the reconciliation engine.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens (or creates) the target store at dbPath and runs all
// pending migrations.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// ListTargets returns the candidate population, optionally filtered by
// target table, ordered by id for reproducible runs.
func (s *Storage) ListTargets(tables []record.TargetTable) ([]*record.TargetRecord, error) {
	query := `
		SELECT id, target_table, amount, occurred_on, descriptive_text, existing_link
		FROM target_records
	`
	var args []interface{}
	if len(tables) > 0 {
		placeholders := make([]string, len(tables))
		for i, t := range tables {
			placeholders[i] = "?"
			args = append(args, t.String())
		}
		query += " WHERE target_table IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var targets []*record.TargetRecord
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// GetTarget retrieves one target by id.
func (s *Storage) GetTarget(id int64) (*record.TargetRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, target_table, amount, occurred_on, descriptive_text, existing_link
		FROM target_records WHERE id = ?
	`, id)
	t, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// SaveTarget inserts or replaces a target row.
func (s *Storage) SaveTarget(t *record.TargetRecord) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO target_records
		(id, target_table, amount, occurred_on, descriptive_text, existing_link)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.TargetTable.String(),
		t.Amount.StringFixed(2),
		t.OccurredOn.Format(dateLayout),
		t.DescriptiveText,
		t.ExistingLink,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTarget(row rowScanner) (*record.TargetRecord, error) {
	var (
		t          record.TargetRecord
		table      string
		amount     string
		occurredOn string
	)
	if err := row.Scan(&t.ID, &table, &amount, &occurredOn, &t.DescriptiveText, &t.ExistingLink); err != nil {
		return nil, err
	}
	t.TargetTable = record.TargetTable(table)

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("target %d: bad amount %q: %w", t.ID, amount, err)
	}
	t.Amount = amt

	on, err := time.Parse(dateLayout, occurredOn)
	if err != nil {
		return nil, fmt.Errorf("target %d: bad date %q: %w", t.ID, occurredOn, err)
	}
	t.OccurredOn = on

	return &t, nil
}

// HasDecision checks whether a decision with the idempotency key exists.
func (s *Storage) HasDecision(idempotencyKey string) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM linkage_decisions WHERE idempotency_key = ?
	`, idempotencyKey).Scan(&count)
	return count > 0, err
}

// ApplyDecision persists a decision inside its own transaction. The
// idempotency key and the target's link state are both re-checked under the
// transaction so a duplicate or a lost race rolls back cleanly without
// touching other decisions.
func (s *Storage) ApplyDecision(d *record.LinkageDecision) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin decision tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRow(`
		SELECT COUNT(*) FROM linkage_decisions WHERE idempotency_key = ?
	`, d.IdempotencyKey).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateDecision
	}

	// At-most-one-link re-check immediately before commit.
	var existing string
	err = tx.QueryRow(`
		SELECT existing_link FROM target_records WHERE id = ?
	`, d.TargetID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("target %d: %w", d.TargetID, err)
	}
	if existing != "" && existing != d.IdempotencyKey {
		return ErrAlreadyLinked
	}

	res, err := tx.Exec(`
		INSERT INTO linkage_decisions
		(idempotency_key, source_id, source_system, origin_key, target_id,
		 target_table, amount, confidence, pass, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.IdempotencyKey,
		d.SourceID,
		d.SourceSystem.String(),
		d.OriginKey,
		d.TargetID,
		d.TargetTable.String(),
		d.Amount.StringFixed(2),
		d.Confidence,
		string(d.Pass),
		d.RunID,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE target_records SET existing_link = ? WHERE id = ?
	`, d.IdempotencyKey, d.TargetID); err != nil {
		return fmt.Errorf("mark target linked: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decision: %w", err)
	}

	d.ID, _ = res.LastInsertId()
	d.AppliedAt = time.Now()
	return nil
}

// ListDecisions returns recent decisions, newest first.
func (s *Storage) ListDecisions(limit int) ([]*record.LinkageDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, idempotency_key, source_id, source_system, origin_key,
		       target_id, target_table, amount, confidence, pass, run_id, applied_at
		FROM linkage_decisions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanDecisions(rows)
}

// DecisionsByRun returns all decisions applied in one run, in apply order.
func (s *Storage) DecisionsByRun(runID int64) ([]*record.LinkageDecision, error) {
	rows, err := s.db.Query(`
		SELECT id, idempotency_key, source_id, source_system, origin_key,
		       target_id, target_table, amount, confidence, pass, run_id, applied_at
		FROM linkage_decisions
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanDecisions(rows)
}

func scanDecisions(rows *sql.Rows) ([]*record.LinkageDecision, error) {
	var decisions []*record.LinkageDecision
	for rows.Next() {
		var (
			d         record.LinkageDecision
			system    string
			table     string
			amount    string
			pass      string
			appliedAt string
		)
		err := rows.Scan(
			&d.ID,
			&d.IdempotencyKey,
			&d.SourceID,
			&system,
			&d.OriginKey,
			&d.TargetID,
			&table,
			&amount,
			&d.Confidence,
			&pass,
			&d.RunID,
			&appliedAt,
		)
		if err != nil {
			return nil, err
		}
		d.SourceSystem = record.SourceSystem(system)
		d.TargetTable = record.TargetTable(table)
		d.Pass = record.Pass(pass)
		if amt, err := decimal.NewFromString(amount); err == nil {
			d.Amount = amt
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", appliedAt); err == nil {
			d.AppliedAt = ts
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

// DecisionStats aggregates applied decisions by source system.
func (s *Storage) DecisionStats() (*Stats, error) {
	stats := &Stats{
		BySystem: make(map[string]SystemStats),
	}

	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CAST(amount AS REAL)), 0),
			COUNT(CASE WHEN pass = 'strict' THEN 1 END),
			COUNT(CASE WHEN pass = 'fuzzy' THEN 1 END)
		FROM linkage_decisions
	`).Scan(&stats.TotalDecisions, &stats.TotalAmount, &stats.StrictCount, &stats.FuzzyCount)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT
			source_system,
			COUNT(*),
			COALESCE(SUM(CAST(amount AS REAL)), 0),
			COUNT(CASE WHEN pass = 'strict' THEN 1 END)
		FROM linkage_decisions
		GROUP BY source_system
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var system string
		var ss SystemStats
		if err := rows.Scan(&system, &ss.Count, &ss.TotalAmount, &ss.StrictCount); err != nil {
			return nil, err
		}
		stats.BySystem[system] = ss
	}
	return stats, rows.Err()
}

// StartRun records the start of a reconciliation run.
func (s *Storage) StartRun(dryRun bool, minConfidence int) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO recon_runs (dry_run, min_confidence, status)
		VALUES (?, ?, 'running')
	`, dryRun, minConfidence)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CompleteRun finalizes a run with its counters.
func (s *Storage) CompleteRun(runID int64, counts RunCounts, status string) error {
	_, err := s.db.Exec(`
		UPDATE recon_runs
		SET completed_at = CURRENT_TIMESTAMP,
		    staged = ?, strict_matched = ?, fuzzy_matched = ?, unmatched = ?,
		    applied = ?, skipped = ?, errored = ?, status = ?
		WHERE id = ?
	`,
		counts.Staged,
		counts.StrictMatched,
		counts.FuzzyMatched,
		counts.Unmatched,
		counts.Applied,
		counts.Skipped,
		counts.Errored,
		status,
		runID,
	)
	return err
}

// ListRuns returns recent runs, newest first.
func (s *Storage) ListRuns(limit int) ([]ReconRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, started_at, COALESCE(completed_at, ''), dry_run, min_confidence,
		       staged, strict_matched, fuzzy_matched, unmatched, applied, skipped, errored, status
		FROM recon_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []ReconRun
	for rows.Next() {
		var r ReconRun
		err := rows.Scan(
			&r.ID, &r.StartedAt, &r.CompletedAt, &r.DryRun, &r.MinConfidence,
			&r.Staged, &r.StrictMatched, &r.FuzzyMatched, &r.Unmatched,
			&r.Applied, &r.Skipped, &r.Errored, &r.Status,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun retrieves one run by id.
func (s *Storage) GetRun(runID int64) (*ReconRun, error) {
	var r ReconRun
	err := s.db.QueryRow(`
		SELECT id, started_at, COALESCE(completed_at, ''), dry_run, min_confidence,
		       staged, strict_matched, fuzzy_matched, unmatched, applied, skipped, errored, status
		FROM recon_runs
		WHERE id = ?
	`, runID).Scan(
		&r.ID, &r.StartedAt, &r.CompletedAt, &r.DryRun, &r.MinConfidence,
		&r.Staged, &r.StrictMatched, &r.FuzzyMatched, &r.Unmatched,
		&r.Applied, &r.Skipped, &r.Errored, &r.Status,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
