package store

import (
	"time"

	"github.com/photonforge/couplerfit/internal/config"
)

// RunRecord is the persisted outcome of an optimization run. It carries
// the best design found and enough context to resume: a resumed run
// restarts the solver from Design with a fresh epigraph initialization,
// since solver-internal state (Hessian approximation, multipliers) is not
// worth serializing across solver backends.
type RunRecord struct {
	// RunID is the unique identifier for this run.
	RunID string `json:"runId"`

	// Design is the best raw design vector found.
	Design []float64 `json:"design"`

	// Epigraph is the final epigraph value t at Design.
	Epigraph float64 `json:"epigraph"`

	// Objectives is the objective vector at Design, in constraint row order.
	Objectives []float64 `json:"objectives"`

	// Iterations is the number of solver iterations performed.
	Iterations int `json:"iterations"`

	// Converged reports whether the solver met its stopping criteria.
	Converged bool `json:"converged"`

	// Timestamp records when this record was created.
	Timestamp time.Time `json:"timestamp"`

	// Config is the run configuration, kept for validation on resume.
	Config config.Config `json:"config"`
}

// NewRunRecord builds a record from a finished run.
func NewRunRecord(runID string, design, objectives []float64, epigraph float64, iterations int, converged bool, cfg config.Config) *RunRecord {
	return &RunRecord{
		RunID:      runID,
		Design:     design,
		Epigraph:   epigraph,
		Objectives: objectives,
		Iterations: iterations,
		Converged:  converged,
		Timestamp:  time.Now(),
		Config:     cfg,
	}
}

// RunInfo is record metadata without the design vector, for cheap listing.
type RunInfo struct {
	RunID      string    `json:"runId"`
	Epigraph   float64   `json:"epigraph"`
	Iterations int       `json:"iterations"`
	Converged  bool      `json:"converged"`
	Timestamp  time.Time `json:"timestamp"`
	Solver     string    `json:"solver"`
	Cells      int       `json:"cells"`
}

// ToInfo strips a record down to its metadata.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:      r.RunID,
		Epigraph:   r.Epigraph,
		Iterations: r.Iterations,
		Converged:  r.Converged,
		Timestamp:  r.Timestamp,
		Solver:     r.Config.Solver,
		Cells:      r.Config.Cells,
	}
}

// Validate checks that the record is complete enough to resume from.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.Design) == 0 {
		return &ValidationError{Field: "Design", Reason: "cannot be empty"}
	}
	if len(r.Design) != r.Config.Cells {
		return &ValidationError{Field: "Design", Reason: "length does not match configured cell count"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return r.Config.Validate()
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
