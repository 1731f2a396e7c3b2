package epigraph

import (
	"errors"
	"math"
	"testing"

	"github.com/curioloop/optimizer/numdiff"
	"github.com/stretchr/testify/require"

	"github.com/photonforge/couplerfit/internal/oracle"
	"github.com/photonforge/couplerfit/internal/param"
)

// curvedOracle is a nonlinear synthetic oracle with closed-form gradients,
// used to verify the chain-rule assembly of the constraint Jacobian.
type curvedOracle struct{}

func (curvedOracle) Inputs() int  { return 3 }
func (curvedOracle) Outputs() int { return 2 }

func (curvedOracle) Evaluate(y []float64, needGrad bool) ([]float64, [][]float64, error) {
	values := []float64{
		y[0]*y[0] + 0.5*y[1],
		y[1]*y[2] + math.Sin(y[2]),
	}
	if !needGrad {
		return values, nil, nil
	}
	jac := [][]float64{
		{2 * y[0], 0.5, 0},
		{0, y[2], y[1] + math.Cos(y[2])},
	}
	return values, jac, nil
}

// failOracle fails every evaluation.
type failOracle struct{ curvedOracle }

var errBadGeometry = errors.New("solver diverged on degenerate geometry")

func (failOracle) Evaluate(y []float64, needGrad bool) ([]float64, [][]float64, error) {
	return nil, nil, errBadGeometry
}

// nanOracle returns a NaN objective value.
type nanOracle struct{ curvedOracle }

func (nanOracle) Evaluate(y []float64, needGrad bool) ([]float64, [][]float64, error) {
	values := []float64{math.NaN(), 0}
	if !needGrad {
		return values, nil, nil
	}
	return values, [][]float64{{0, 0, 0}, {0, 0, 0}}, nil
}

func newTestDriver(t *testing.T, o oracle.Oracle, p param.Map, obs ...Observer) *Driver {
	t.Helper()
	d, err := New(Config{Oracle: o, Param: p, Dim: 3, Observers: obs})
	require.NoError(t, err)
	return d
}

func TestNewRejectsShapeMismatch(t *testing.T) {
	// Parametrization output must match oracle input.
	_, err := New(Config{Oracle: curvedOracle{}, Dim: 2})
	require.Error(t, err)

	// Tolerance vector must match the objective row count.
	_, err = New(Config{Oracle: curvedOracle{}, Dim: 3, Tolerances: []float64{0}})
	require.Error(t, err)

	// Margin must leave a strictly feasible start.
	_, err = New(Config{Oracle: curvedOracle{}, Dim: 3, Margin: 1.0})
	require.Error(t, err)

	_, err = New(Config{Oracle: curvedOracle{}, Dim: 3})
	require.NoError(t, err)
}

func TestObjectiveIsEpigraphVariable(t *testing.T) {
	d := newTestDriver(t, curvedOracle{}, nil)

	for _, x := range [][]float64{
		{0.7, 0.1, 0.2, 0.3},
		{-3.5, 1, 0, 1},
	} {
		grad := make([]float64, d.N())
		v, err := d.Objective(x, grad)
		require.NoError(t, err)
		require.Equal(t, x[0], v)

		require.Equal(t, 1.0, grad[0])
		for i := 1; i < d.N(); i++ {
			require.Zero(t, grad[i], "gradient index %d", i)
		}
	}

	// Value-only calls pass a nil gradient.
	v, err := d.Objective([]float64{2, 0, 0, 0}, nil)
	require.NoError(t, err)
	require.Equal(t, 2.0, v)

	_, err = d.Objective([]float64{1, 2}, nil)
	require.Error(t, err)
}

func TestConstraintGradientsMatchFiniteDifferences(t *testing.T) {
	p := param.Chain{
		param.BoxFilter{Radius: 1},
		param.TanhProject{Beta: 3, Eta: 0.5},
	}

	for _, x := range [][]float64{
		{0.6, 0.2, 0.8, 0.4},
		{0.1, 0.9, 0.5, 0.65},
	} {
		d := newTestDriver(t, curvedOracle{}, p)

		_, jac, err := d.Constraints(x)
		require.NoError(t, err)

		spec := numdiff.ApproxSpec{
			N:      d.N(),
			M:      d.Rows(),
			Method: numdiff.Central,
			Object: func(x, y []float64) {
				g, _, err := d.Constraints(x)
				if err != nil {
					panic(err)
				}
				copy(y, g)
			},
		}
		fd := make([]float64, d.N()*d.Rows())
		x0 := append([]float64(nil), x...)
		require.NoError(t, spec.Diff(x0, fd))

		for i := 0; i < d.Rows(); i++ {
			for j := 0; j < d.N(); j++ {
				require.InDelta(t, fd[i*d.N()+j], jac[i][j], 1e-6,
					"row %d column %d", i, j)
			}
		}
	}
}

func TestConstraintRowOrderingIsStable(t *testing.T) {
	x := []float64{0.5, 0.3, 0.6, 0.9}

	d1 := newTestDriver(t, curvedOracle{}, nil)
	d2 := newTestDriver(t, curvedOracle{}, nil)

	g1, _, err := d1.Constraints(x)
	require.NoError(t, err)
	g2, _, err := d2.Constraints(x)
	require.NoError(t, err)
	require.Equal(t, g1, g2)

	// Repeated calls on the same driver reproduce the rows exactly.
	g3, _, err := d1.Constraints(x)
	require.NoError(t, err)
	require.Equal(t, g1, g3)
}

func TestOracleEvaluationIsCached(t *testing.T) {
	counter := &oracle.CallCounter{Oracle: curvedOracle{}}
	d := newTestDriver(t, counter, nil)

	x := []float64{0.4, 0.1, 0.2, 0.3}

	g1, _, err := d.Constraints(x)
	require.NoError(t, err)
	_, err = d.Objective(x, make([]float64, d.N()))
	require.NoError(t, err)
	_, _, err = d.Constraints(x)
	require.NoError(t, err)
	require.Equal(t, 1, d.iter)
	require.Equal(t, 1, counter.Calls())

	// Changing only the epigraph variable reuses the cached oracle result;
	// the rows shift by the difference in t.
	x2 := append([]float64(nil), x...)
	x2[0] = 0.9
	g2, _, err := d.Constraints(x2)
	require.NoError(t, err)
	require.Equal(t, 1, counter.Calls())
	for i := range g2 {
		require.InDelta(t, g1[i]-0.5, g2[i], 1e-12, "row %d", i)
	}

	// A new design point triggers exactly one more evaluation.
	x3 := []float64{0.4, 0.15, 0.2, 0.3}
	_, _, err = d.Constraints(x3)
	require.NoError(t, err)
	require.Equal(t, 2, counter.Calls())
}

func TestObserversFireOncePerEvaluation(t *testing.T) {
	var hist History
	var calls int
	d := newTestDriver(t, curvedOracle{}, nil, hist.Record, func(Snapshot) { calls++ })

	points := [][]float64{
		{0.5, 0.1, 0.2, 0.3},
		{0.5, 0.1, 0.2, 0.3}, // cached, must not re-fire
		{0.4, 0.9, 0.2, 0.3},
		{0.3, 0.9, 0.8, 0.3},
	}
	for _, x := range points {
		_, _, err := d.Constraints(x)
		require.NoError(t, err)
	}

	require.Equal(t, 3, hist.Len())
	require.Equal(t, 3, calls)
	for i := 0; i < hist.Len(); i++ {
		require.Equal(t, i, hist.At(i).Iteration)
		require.Len(t, hist.At(i).Objectives, d.Rows())
	}
	require.Equal(t, 0.5, hist.At(0).Epigraph)

	last, ok := hist.Last()
	require.True(t, ok)
	require.Equal(t, 2, last.Iteration)
}

func TestWorstObservedReportsEvaluations(t *testing.T) {
	var hist History
	d := newTestDriver(t, curvedOracle{}, nil, hist.Record)

	w1, values, err := d.WorstObserved([]float64{0.1, 0.2, 0.3})
	require.NoError(t, err)
	require.Len(t, values, d.Rows())

	_, _, err = d.WorstObserved([]float64{0.9, 0.2, 0.3})
	require.NoError(t, err)

	require.Equal(t, 2, hist.Len())
	require.Equal(t, 0, hist.At(0).Iteration)
	require.Equal(t, 1, hist.At(1).Iteration)
	// The worst value stands in for the epigraph variable.
	require.Equal(t, w1, hist.At(0).Epigraph)
	require.Len(t, hist.At(0).Objectives, d.Rows())

	// Plain Worst and Init stay silent.
	_, _, err = d.Worst([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	_, err = d.Init([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	require.Equal(t, 2, hist.Len())
}

func TestInitAppliesMarginToWorstObjective(t *testing.T) {
	o := &oracle.Linear{
		A: [][]float64{{0, 0}, {0, 0}, {0, 0}},
		B: []float64{0.2, 0.5, 0.3},
	}
	d, err := New(Config{Oracle: o, Dim: 2})
	require.NoError(t, err)

	x, err := d.Init([]float64{0.5, 0.5})
	require.NoError(t, err)
	require.Len(t, x, 3)
	require.InDelta(t, 1.05*0.5, x[0], 1e-12)
	require.Equal(t, []float64{0.5, 0.5}, x[1:])
}

func TestInitUsesForwardOnlyEvaluation(t *testing.T) {
	counter := &oracle.CallCounter{Oracle: curvedOracle{}}
	d := newTestDriver(t, counter, nil)

	_, err := d.Init([]float64{0.2, 0.4, 0.6})
	require.NoError(t, err)
	require.Equal(t, 1, counter.Forward)
	require.Zero(t, counter.Gradient)
}

func TestOracleFailurePropagates(t *testing.T) {
	d := newTestDriver(t, failOracle{}, nil)

	_, _, err := d.Constraints([]float64{0.5, 0.1, 0.2, 0.3})
	require.ErrorIs(t, err, errBadGeometry)

	_, err = d.Init([]float64{0.1, 0.2, 0.3})
	require.ErrorIs(t, err, errBadGeometry)
}

func TestNonFiniteValuesAreHardFailures(t *testing.T) {
	d := newTestDriver(t, nanOracle{}, nil)

	_, _, err := d.Constraints([]float64{0.5, 0.1, 0.2, 0.3})
	require.ErrorIs(t, err, ErrNonFinite)
}

func TestBounds(t *testing.T) {
	d := newTestDriver(t, curvedOracle{}, nil)

	lower, upper := d.Bounds()
	require.True(t, math.IsInf(lower[0], -1))
	require.True(t, math.IsInf(upper[0], 1))
	for i := 1; i < d.N(); i++ {
		require.Zero(t, lower[i])
		require.Equal(t, 1.0, upper[i])
	}
}
