package storage

// ReconRun is the durable record of one pipeline invocation.
type ReconRun struct {
	ID            int64  `json:"id"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
	DryRun        bool   `json:"dry_run"`
	MinConfidence int    `json:"min_confidence"`
	Staged        int    `json:"staged"`
	StrictMatched int    `json:"strict_matched"`
	FuzzyMatched  int    `json:"fuzzy_matched"`
	Unmatched     int    `json:"unmatched"`
	Applied       int    `json:"applied"`
	Skipped       int    `json:"skipped"`
	Errored       int    `json:"errored"`
	Status        string `json:"status"`
}

// RunCounts carries the per-run counters from the pipeline to CompleteRun.
type RunCounts struct {
	Staged        int
	StrictMatched int
	FuzzyMatched  int
	Unmatched     int
	Applied       int
	Skipped       int
	Errored       int
}

// Stats aggregates applied decisions for the audit surfaces.
type Stats struct {
	TotalDecisions int                    `json:"total_decisions"`
	TotalAmount    float64                `json:"total_amount"`
	StrictCount    int                    `json:"strict_count"`
	FuzzyCount     int                    `json:"fuzzy_count"`
	BySystem       map[string]SystemStats `json:"by_system"`
}

// SystemStats is the per-source-system slice of Stats.
type SystemStats struct {
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
	StrictCount int     `json:"strict_count"`
}
