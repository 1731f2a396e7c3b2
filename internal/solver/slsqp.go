package solver

import (
	"fmt"
	"log/slog"

	"github.com/curioloop/optimizer/slsqp"

	"github.com/photonforge/couplerfit/internal/epigraph"
)

// SLSQP adapts the sequential least-squares programming solver to the
// epigraph driver. It is the primary, gradient-based path: the driver's
// rows g_i(x) <= tol_i are handed to SLSQP as inequality constraints
// c_i(x) = tol_i - g_i(x) >= 0 with negated gradient rows.
type SLSQP struct {
	MaxIterations int
	Accuracy      float64
}

// NewSLSQP creates the adapter with the given iteration budget.
func NewSLSQP(maxIters int, accuracy float64) *SLSQP {
	if accuracy <= 0 {
		accuracy = 1e-8
	}
	return &SLSQP{MaxIterations: maxIters, Accuracy: accuracy}
}

// abortSolve carries a driver error out of an slsqp callback. The solver
// recovers panics from evaluations and ends the run, so the recorded
// error can be returned instead of a silently degraded result.
type abortSolve struct{ err error }

func (s *SLSQP) Solve(drv *epigraph.Driver, design []float64) (*Result, error) {
	x0, err := drv.Init(design)
	if err != nil {
		return nil, err
	}
	slog.Info("SLSQP start", "n", drv.N(), "rows", drv.Rows(), "t0", x0[0])

	var evalErr error
	fail := func(err error) {
		if evalErr == nil {
			evalErr = err
		}
		panic(abortSolve{err})
	}

	objective := slsqp.Evaluation(func(x, g []float64) float64 {
		v, err := drv.Objective(x, g)
		if err != nil {
			fail(err)
		}
		return v
	})

	cons := make([]slsqp.Evaluation, drv.Rows())
	for i := range cons {
		row := i
		cons[row] = func(x, g []float64) float64 {
			gv, jac, err := drv.Constraints(x)
			if err != nil {
				fail(err)
			}
			if g != nil {
				for j, v := range jac[row] {
					g[j] = -v
				}
			}
			return drv.Tolerance(row) - gv[row]
		}
	}

	lower, upper := drv.Bounds()
	bounds := make([]slsqp.Bound, drv.N())
	for i := range bounds {
		bounds[i] = slsqp.Bound{Lower: lower[i], Upper: upper[i]}
	}

	problem := slsqp.Problem{
		N:       drv.N(),
		Object:  objective,
		NeqCons: cons,
		Bounds:  bounds,
		Stop: slsqp.Termination{
			Accuracy:      s.Accuracy,
			MaxIterations: s.MaxIterations,
		},
	}

	opt, err := problem.New()
	if err != nil {
		return nil, fmt.Errorf("slsqp setup: %w", err)
	}

	r := opt.Fit(x0, opt.Init())
	if evalErr != nil {
		return nil, evalErr
	}

	final := r.X[1:]
	worst, objectives, err := drv.Worst(final)
	if err != nil {
		return nil, err
	}

	slog.Info("SLSQP done", "converged", r.OK, "iterations", r.NumIter,
		"t", r.X[0], "worst", worst)

	return &Result{
		Design:     append([]float64(nil), final...),
		Epigraph:   r.X[0],
		Objectives: objectives,
		Iterations: r.NumIter,
		Converged:  r.OK,
	}, nil
}
