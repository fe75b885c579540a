package storage

import (
	"errors"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

// Sentinel errors surfaced by the decision applier.
var (
	// ErrDuplicateDecision means a decision with the same idempotency key
	// already exists; the apply is a no-op.
	ErrDuplicateDecision = errors.New("decision already applied for idempotency key")

	// ErrAlreadyLinked means the target failed the at-most-one-link
	// re-check at commit time.
	ErrAlreadyLinked = errors.New("target already carries a link")
)

// Repository defines the complete storage interface. It allows swapping
// implementations (SQLite now, PostgreSQL later) and makes pipeline tests
// straightforward with the in-memory mock.
type Repository interface {
	TargetRepository
	DecisionRepository
	RunRepository
	Close() error
}

// TargetRepository reads and seeds the candidate target population.
type TargetRepository interface {
	// ListTargets returns the target population, optionally filtered to
	// specific tables. Ordered by id.
	ListTargets(tables []record.TargetTable) ([]*record.TargetRecord, error)

	// GetTarget retrieves one target by id, nil when absent.
	GetTarget(id int64) (*record.TargetRecord, error)

	// SaveTarget inserts or replaces a target row. Used by import tooling
	// and tests.
	SaveTarget(t *record.TargetRecord) error
}

// DecisionRepository persists and queries linkage decisions.
type DecisionRepository interface {
	// HasDecision checks whether a decision with the idempotency key exists.
	HasDecision(idempotencyKey string) (bool, error)

	// ApplyDecision persists one decision inside its own transaction,
	// enforcing the unique idempotency key and the at-most-one-link
	// invariant. Returns ErrDuplicateDecision or ErrAlreadyLinked.
	ApplyDecision(d *record.LinkageDecision) error

	// ListDecisions returns the most recent decisions.
	ListDecisions(limit int) ([]*record.LinkageDecision, error)

	// DecisionsByRun returns all decisions applied in one run.
	DecisionsByRun(runID int64) ([]*record.LinkageDecision, error)

	// DecisionStats aggregates decision counts by source system.
	DecisionStats() (*Stats, error)
}

// RunRepository tracks reconciliation runs.
type RunRepository interface {
	// StartRun records the start of a run and returns its id.
	StartRun(dryRun bool, minConfidence int) (int64, error)

	// CompleteRun finalizes a run with its counters and status.
	CompleteRun(runID int64, counts RunCounts, status string) error

	// ListRuns returns recent runs, newest first.
	ListRuns(limit int) ([]ReconRun, error)

	// GetRun retrieves one run by id, nil when absent.
	GetRun(runID int64) (*ReconRun, error)
}
