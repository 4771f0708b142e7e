package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the final per-indexer outcome of one decision cycle.
type State int

const (
	StateSkipped        State = iota // in cooldown, not tested
	StateHealthy                     // already valid, current config confirmed good
	StateRepaired                    // a candidate passed and was applied
	StateFailedRollback              // all candidates failed; rolled back if possible
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateRepaired:
		return "repaired"
	case StateFailedRollback:
		return "failed_rollback"
	default:
		return "skipped"
	}
}

// MarshalText makes outcome states readable in JSON reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome records what the engine decided for one indexer.
type Outcome struct {
	IndexerID       int    `json:"indexerId"`
	Name            string `json:"name"`
	State           State  `json:"state"`
	AppliedURL      string `json:"appliedUrl,omitempty"`
	TagApplied      bool   `json:"tagApplied,omitempty"`
	CandidatesTried int    `json:"candidatesTried,omitempty"`
	RolledBack      bool   `json:"rolledBack,omitempty"`
	DryRun          bool   `json:"dryRun,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Report enumerates per-indexer outcomes for one cycle.
type Report struct {
	RunID     string        `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	DryRun    bool          `json:"dryRun"`
	Outcomes  []Outcome     `json:"outcomes"`
}

// NewReport starts a report for a new cycle.
func NewReport(dryRun bool) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		DryRun:    dryRun,
	}
}

// Add appends an outcome.
func (r *Report) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Counts tallies outcomes by state.
func (r *Report) Counts() map[State]int {
	counts := make(map[State]int)
	for _, o := range r.Outcomes {
		counts[o.State]++
	}
	return counts
}

// Summary renders a one-line cycle summary for logs.
func (r *Report) Summary() string {
	c := r.Counts()
	return fmt.Sprintf("healthy=%d repaired=%d failed=%d skipped=%d",
		c[StateHealthy], c[StateRepaired], c[StateFailedRollback], c[StateSkipped])
}
