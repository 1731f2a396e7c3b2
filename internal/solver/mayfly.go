package solver

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"github.com/photonforge/couplerfit/internal/epigraph"
)

// Mayfly adapts the mayfly population optimizer as a derivative-free
// fallback. Instead of the epigraph reformulation it minimizes the worst
// objective max_i F(P(x)) directly with forward-only oracle evaluations,
// which suits oracles without adjoint gradients.
type Mayfly struct {
	MaxIterations int
	PopSize       int
	Seed          int64
}

// NewMayfly creates the adapter.
func NewMayfly(maxIters, popSize int, seed int64) *Mayfly {
	return &Mayfly{MaxIterations: maxIters, PopSize: popSize, Seed: seed}
}

func (m *Mayfly) Solve(drv *epigraph.Driver, design []float64) (*Result, error) {
	slog.Info("mayfly start", "dim", drv.Dim(), "pop", m.PopSize, "iters", m.MaxIterations)

	var evalErr error
	eval := func(x []float64) float64 {
		if evalErr != nil {
			// A failed evaluation already invalidated the run; don't
			// burn oracle calls on the remaining population.
			return math.Inf(1)
		}
		worst, _, err := drv.WorstObserved(x)
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		return worst
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = drv.Dim()
	config.MaxIterations = m.MaxIterations
	config.NPop = m.PopSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.Seed))

	result, err := mayfly.Optimize(config)
	if evalErr != nil {
		return nil, evalErr
	}
	if err != nil {
		return nil, err
	}

	best := result.GlobalBest.Position
	worst, objectives, err := drv.Worst(best)
	if err != nil {
		return nil, err
	}

	slog.Info("mayfly done", "worst", worst, "iterations", m.MaxIterations)

	// A population search has no convergence test; it always runs its
	// full budget.
	return &Result{
		Design:     append([]float64(nil), best...),
		Epigraph:   worst,
		Objectives: objectives,
		Iterations: m.MaxIterations,
		Converged:  false,
	}, nil
}
