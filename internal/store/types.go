package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/fmrefine/internal/refine"
)

// RunConfig holds the settings a run was started with.
type RunConfig struct {
	HypergraphPath    string  `json:"hypergraphPath"`
	K                 int     `json:"k"`
	Epsilon           float64 `json:"epsilon"`
	Seed              int64   `json:"seed"`
	StoppingRule      string  `json:"stoppingRule"`
	MaxFruitlessMoves int     `json:"maxFruitlessMoves"`
	Alpha             float64 `json:"alpha"`
	Beta              float64 `json:"beta"`
	MaxPasses         int     `json:"maxPasses,omitempty"` // 0 = until converged
	Patience          int     `json:"patience,omitempty"`
	MinImprovement    float64 `json:"minImprovement,omitempty"`
}

// RunRecord is the persisted outcome of one refinement run.
//
// Assignment is the block of every vertex after the final rollback, so a
// record is enough to reconstruct the refined partition together with the
// hypergraph file.
type RunRecord struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	Config RunConfig `json:"config"`

	// InitialCut is the cut of the seed partition
	InitialCut int64 `json:"initialCut"`

	// BestCut is the cut after refinement
	BestCut int64 `json:"bestCut"`

	// Passes holds the result of every local-search pass in order
	Passes []*refine.PassResult `json:"passes"`

	// Assignment is the block of every vertex
	Assignment []int `json:"assignment"`

	Timestamp time.Time `json:"timestamp"`
}

// RunInfo contains metadata about a run without the assignment.
type RunInfo struct {
	RunID        string    `json:"runId"`
	BestCut      int64     `json:"bestCut"`
	InitialCut   int64     `json:"initialCut"`
	Passes       int       `json:"passes"`
	Moves        int       `json:"moves"`
	StoppingRule string    `json:"stoppingRule"`
	K            int       `json:"k"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRunRecord creates a record from a finished refinement.
func NewRunRecord(runID string, config RunConfig, result *refine.RefineResult, assignment []int) *RunRecord {
	return &RunRecord{
		RunID:      runID,
		Config:     config,
		InitialCut: result.InitialCut,
		BestCut:    result.FinalCut,
		Passes:     result.Passes,
		Assignment: assignment,
		Timestamp:  time.Now(),
	}
}

// Moves returns the number of moves applied over all passes.
func (r *RunRecord) Moves() int {
	n := 0
	for _, p := range r.Passes {
		n += p.MovesApplied
	}
	return n
}

// ToInfo converts a full RunRecord to RunInfo (metadata only).
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:        r.RunID,
		BestCut:      r.BestCut,
		InitialCut:   r.InitialCut,
		Passes:       len(r.Passes),
		Moves:        r.Moves(),
		StoppingRule: r.Config.StoppingRule,
		K:            r.Config.K,
		Timestamp:    r.Timestamp,
	}
}

// Validate checks if the record has valid data.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.Assignment) == 0 {
		return &ValidationError{Field: "Assignment", Reason: "cannot be empty"}
	}
	if r.Config.K < 2 {
		return &ValidationError{Field: "Config.K", Reason: "must be at least 2"}
	}
	for v, b := range r.Assignment {
		if b < 0 || b >= r.Config.K {
			return &ValidationError{
				Field:  "Assignment",
				Reason: fmt.Sprintf("vertex %d in block %d outside [0,%d)", v, b, r.Config.K),
			}
		}
	}
	if _, err := refine.ParseStoppingRule(r.Config.StoppingRule); err != nil {
		return &ValidationError{Field: "Config.StoppingRule", Reason: err.Error()}
	}
	if r.BestCut < 0 || r.InitialCut < 0 {
		return &ValidationError{Field: "BestCut", Reason: "cannot be negative"}
	}
	// refinement never makes the cut worse
	if r.BestCut > r.InitialCut {
		return &ValidationError{
			Field:  "BestCut",
			Reason: fmt.Sprintf("%d is worse than initial cut %d", r.BestCut, r.InitialCut),
		}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
