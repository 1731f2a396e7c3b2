package solver

import "github.com/photonforge/couplerfit/internal/epigraph"

// Result is the outcome of an optimization run.
type Result struct {
	// Design is the final raw design vector.
	Design []float64

	// Epigraph is the final epigraph value t, an upper bound on the worst
	// objective at Design.
	Epigraph float64

	// Objectives is the objective vector at Design, in row order.
	Objectives []float64

	// Iterations is the number of solver iterations performed.
	Iterations int

	// Converged reports whether the solver met its stopping criteria
	// before exhausting the iteration budget.
	Converged bool
}

// Solver drives an epigraph reformulation to a solution from an initial
// raw design. Implementations adapt external optimization libraries to
// the driver's objective/constraint contract.
type Solver interface {
	Solve(drv *epigraph.Driver, design []float64) (*Result, error)
}
