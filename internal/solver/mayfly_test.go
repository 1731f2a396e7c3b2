package solver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/photonforge/couplerfit/internal/epigraph"
	"github.com/photonforge/couplerfit/internal/oracle"
)

var errForwardFailed = errors.New("forward solve failed")

// failingForwardOracle fails every evaluation.
type failingForwardOracle struct{}

func (failingForwardOracle) Inputs() int  { return 2 }
func (failingForwardOracle) Outputs() int { return 2 }

func (failingForwardOracle) Evaluate([]float64, bool) ([]float64, [][]float64, error) {
	return nil, nil, errForwardFailed
}

func TestMayflyMinimizesWorstObjective(t *testing.T) {
	// max(y1, y2) over [0,1]² is minimized at the origin. The population
	// search only needs to get close.
	o := &oracle.Linear{
		A: [][]float64{{1, 0}, {0, 1}},
	}
	counter := &oracle.CallCounter{Oracle: o}
	var hist epigraph.History
	drv := newDriver(t, counter, 2, hist.Record)

	res, err := NewMayfly(60, 20, 42).Solve(drv, []float64{0.5, 0.5})
	require.NoError(t, err)

	require.Less(t, res.Epigraph, 0.35)
	require.Len(t, res.Design, 2)

	// The population search runs its full budget; it never converges in
	// the stopping-criteria sense.
	require.False(t, res.Converged)

	// Derivative-free path only ever uses forward evaluations.
	require.Zero(t, counter.Gradient)
	require.Greater(t, counter.Forward, 0)

	// Every candidate evaluation reaches the observers; only the final
	// re-evaluation of the best design is silent.
	require.Equal(t, counter.Forward-1, hist.Len())
	for i := 0; i < hist.Len(); i++ {
		require.Equal(t, i, hist.At(i).Iteration)
	}
}

func TestMayflyPropagatesOracleFailure(t *testing.T) {
	drv := newDriver(t, failingForwardOracle{}, 2)

	_, err := NewMayfly(10, 5, 1).Solve(drv, []float64{0.5, 0.5})
	require.ErrorIs(t, err, errForwardFailed)
}
