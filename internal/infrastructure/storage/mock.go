package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arrowlimo/arrow-limo-sub003/internal/domain/record"
)

// MockRepository is an in-memory Repository for tests.
type MockRepository struct {
	mu sync.Mutex

	targets   map[int64]*record.TargetRecord
	decisions map[string]*record.LinkageDecision // by idempotency key
	runs      map[int64]*ReconRun

	nextDecisionID int64
	nextRunID      int64

	// FailApply forces ApplyDecision to fail with the given error, for
	// partial-failure tests. Keyed by idempotency key.
	FailApply map[string]error
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates an empty in-memory repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		targets:   make(map[int64]*record.TargetRecord),
		decisions: make(map[string]*record.LinkageDecision),
		runs:      make(map[int64]*ReconRun),
		FailApply: make(map[string]error),
	}
}

// ListTargets returns the target population ordered by id.
func (m *MockRepository) ListTargets(tables []record.TargetTable) ([]*record.TargetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[record.TargetTable]bool, len(tables))
	for _, t := range tables {
		want[t] = true
	}

	var out []*record.TargetRecord
	for _, t := range m.targets {
		if len(want) > 0 && !want[t.TargetTable] {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetTarget retrieves one target by id.
func (m *MockRepository) GetTarget(id int64) (*record.TargetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// SaveTarget inserts or replaces a target row.
func (m *MockRepository) SaveTarget(t *record.TargetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.targets[t.ID] = &cp
	return nil
}

// HasDecision checks for an existing idempotency key.
func (m *MockRepository) HasDecision(idempotencyKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.decisions[idempotencyKey]
	return ok, nil
}

// ApplyDecision mirrors the sqlite transaction semantics: duplicate keys
// and already-linked targets fail without mutating anything.
func (m *MockRepository) ApplyDecision(d *record.LinkageDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailApply[d.IdempotencyKey]; ok {
		return err
	}
	if _, dup := m.decisions[d.IdempotencyKey]; dup {
		return ErrDuplicateDecision
	}
	target, ok := m.targets[d.TargetID]
	if !ok {
		return fmt.Errorf("target %d: not found", d.TargetID)
	}
	if target.ExistingLink != "" && target.ExistingLink != d.IdempotencyKey {
		return ErrAlreadyLinked
	}

	m.nextDecisionID++
	d.ID = m.nextDecisionID
	d.AppliedAt = time.Now()
	cp := *d
	m.decisions[d.IdempotencyKey] = &cp
	target.ExistingLink = d.IdempotencyKey
	return nil
}

// ListDecisions returns decisions newest first.
func (m *MockRepository) ListDecisions(limit int) ([]*record.LinkageDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*record.LinkageDecision, 0, len(m.decisions))
	for _, d := range m.decisions {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DecisionsByRun returns decisions for one run in apply order.
func (m *MockRepository) DecisionsByRun(runID int64) ([]*record.LinkageDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*record.LinkageDecision
	for _, d := range m.decisions {
		if d.RunID == runID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DecisionStats aggregates by source system.
func (m *MockRepository) DecisionStats() (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{BySystem: make(map[string]SystemStats)}
	for _, d := range m.decisions {
		stats.TotalDecisions++
		amt, _ := d.Amount.Float64()
		stats.TotalAmount += amt
		if d.Pass == record.PassStrict {
			stats.StrictCount++
		} else {
			stats.FuzzyCount++
		}
		ss := stats.BySystem[d.SourceSystem.String()]
		ss.Count++
		ss.TotalAmount += amt
		if d.Pass == record.PassStrict {
			ss.StrictCount++
		}
		stats.BySystem[d.SourceSystem.String()] = ss
	}
	return stats, nil
}

// StartRun records a run start.
func (m *MockRepository) StartRun(dryRun bool, minConfidence int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRunID++
	m.runs[m.nextRunID] = &ReconRun{
		ID:            m.nextRunID,
		StartedAt:     time.Now().Format("2006-01-02 15:04:05"),
		DryRun:        dryRun,
		MinConfidence: minConfidence,
		Status:        "running",
	}
	return m.nextRunID, nil
}

// CompleteRun finalizes a run.
func (m *MockRepository) CompleteRun(runID int64, counts RunCounts, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %d: not found", runID)
	}
	run.CompletedAt = time.Now().Format("2006-01-02 15:04:05")
	run.Staged = counts.Staged
	run.StrictMatched = counts.StrictMatched
	run.FuzzyMatched = counts.FuzzyMatched
	run.Unmatched = counts.Unmatched
	run.Applied = counts.Applied
	run.Skipped = counts.Skipped
	run.Errored = counts.Errored
	run.Status = status
	return nil
}

// ListRuns returns runs newest first.
func (m *MockRepository) ListRuns(limit int) ([]ReconRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ReconRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetRun retrieves one run by id.
func (m *MockRepository) GetRun(runID int64) (*ReconRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// Close is a no-op for the mock.
func (m *MockRepository) Close() error {
	return nil
}
