package epigraph

import (
	"errors"
	"fmt"
	"math"

	"github.com/photonforge/couplerfit/internal/oracle"
	"github.com/photonforge/couplerfit/internal/param"
)

// ErrNonFinite reports a NaN or Inf in oracle output. Non-finite values
// are a hard failure: silently clamping them would corrupt the solver's
// internal model of the objective landscape without diagnosis.
var ErrNonFinite = errors.New("non-finite oracle output")

// DefaultMargin is the factor applied to the worst initial objective when
// choosing the starting epigraph value, so the run begins strictly feasible.
const DefaultMargin = 1.05

// Config assembles a Driver. Oracle and Dim are required; Param defaults
// to the identity map, Tolerances to zero per row, Margin to DefaultMargin.
type Config struct {
	Oracle     oracle.Oracle
	Param      param.Map
	Dim        int        // number of raw design variables
	Tolerances []float64  // per-row feasibility tolerance, len must match oracle outputs
	Margin     float64    // initial epigraph margin factor
	Observers  []Observer // invoked in order, once per fresh evaluation
}

// Driver reformulates the min-max problem
//
//	minimize over x[1:]:  max_i F(P(x[1:]))_i
//
// as the constrained problem
//
//	minimize x[0]  subject to  F(P(x[1:]))_i - x[0] <= tol_i
//
// where x[0] is the epigraph variable t, P the design parametrization and
// F the oracle. Objective and Constraints expose the value/gradient pair a
// gradient-based nonlinear solver needs; the constraint Jacobian rows are
// [-1 | dF/dy · dP/dx], assembled by exact chain rule through P.
//
// The driver assumes the solver evaluates sequentially on one goroutine.
// Oracle results are cached per distinct design point so that repeated
// constraint-row queries at the same x run the simulation once.
type Driver struct {
	oracle    oracle.Oracle
	pmap      param.Map
	dim       int
	rows      int
	tol       []float64
	margin    float64
	observers []Observer

	iter int

	// Cache of the most recent oracle evaluation. Valid only under the
	// sequential calling pattern; a keyed lock would be needed if the
	// solver ever evaluated candidate points concurrently.
	lastX   []float64
	lastF   []float64
	lastJac [][]float64
}

// New validates dimensions and builds a Driver. All shape mismatches are
// rejected here, before any expensive oracle evaluation.
func New(cfg Config) (*Driver, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("epigraph: oracle is required")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("epigraph: design dimension %d, must be positive", cfg.Dim)
	}

	pmap := cfg.Param
	if pmap == nil {
		pmap = param.Identity{}
	}
	if out := pmap.OutDim(cfg.Dim); out != cfg.Oracle.Inputs() {
		return nil, fmt.Errorf("epigraph: parametrization output %d does not match oracle input %d", out, cfg.Oracle.Inputs())
	}

	rows := cfg.Oracle.Outputs()
	if rows <= 0 {
		return nil, fmt.Errorf("epigraph: oracle reports %d objective rows", rows)
	}

	tol := cfg.Tolerances
	if tol == nil {
		tol = make([]float64, rows)
	} else if len(tol) != rows {
		return nil, fmt.Errorf("epigraph: %d tolerances for %d objective rows", len(tol), rows)
	}

	margin := cfg.Margin
	if margin == 0 {
		margin = DefaultMargin
	}
	if margin <= 1 {
		return nil, fmt.Errorf("epigraph: margin %g, must exceed 1", margin)
	}

	return &Driver{
		oracle:    cfg.Oracle,
		pmap:      pmap,
		dim:       cfg.Dim,
		rows:      rows,
		tol:       append([]float64(nil), tol...),
		margin:    margin,
		observers: append([]Observer(nil), cfg.Observers...),
	}, nil
}

// N is the solver variable count: the epigraph variable plus the design.
func (d *Driver) N() int { return d.dim + 1 }

// Dim is the number of raw design variables.
func (d *Driver) Dim() int { return d.dim }

// Rows is the number of epigraph constraints.
func (d *Driver) Rows() int { return d.rows }

// Tolerance reports the feasibility tolerance of constraint row i.
func (d *Driver) Tolerance(i int) float64 { return d.tol[i] }

// Bounds returns solver variable bounds: the epigraph variable is
// unconstrained while the design variables stay in [0, 1].
func (d *Driver) Bounds() (lower, upper []float64) {
	n := d.N()
	lower = make([]float64, n)
	upper = make([]float64, n)
	lower[0] = math.Inf(-1)
	upper[0] = math.Inf(1)
	for i := 1; i < n; i++ {
		upper[i] = 1
	}
	return lower, upper
}

// Objective returns the epigraph variable x[0] and, when grad is non-nil,
// its gradient: the unit vector on index 0. It never touches the oracle.
func (d *Driver) Objective(x, grad []float64) (float64, error) {
	if len(x) != d.N() {
		return 0, fmt.Errorf("epigraph: point dimension %d, expected %d", len(x), d.N())
	}
	if grad != nil {
		for i := range grad[:d.N()] {
			grad[i] = 0
		}
		grad[0] = 1
	}
	return x[0], nil
}

// Constraints evaluates g_i(x) = F(P(x[1:]))_i - x[0] and the constraint
// Jacobian, one row per (objective kind, wavelength) pair in the oracle's
// fixed ordering. A failed or non-finite evaluation propagates as an error;
// no stale values are ever returned in its place.
func (d *Driver) Constraints(x []float64) (g []float64, jac [][]float64, err error) {
	if len(x) != d.N() {
		return nil, nil, fmt.Errorf("epigraph: point dimension %d, expected %d", len(x), d.N())
	}

	t := x[0]
	design := x[1:]
	if !d.cached(design) {
		if err := d.evaluate(design); err != nil {
			return nil, nil, err
		}
		d.notify(t, d.lastF)
	}

	g = make([]float64, d.rows)
	jac = make([][]float64, d.rows)
	for i := range g {
		g[i] = d.lastF[i] - t
		jac[i] = append([]float64(nil), d.lastJac[i]...)
	}
	return g, jac, nil
}

// notify fires the observers exactly once per fresh evaluation, with a
// 0-based, strictly increasing iteration index.
func (d *Driver) notify(t float64, values []float64) {
	snap := Snapshot{
		Iteration:  d.iter,
		Epigraph:   t,
		Objectives: append([]float64(nil), values...),
	}
	d.iter++
	for _, obs := range d.observers {
		obs(snap)
	}
}

func (d *Driver) cached(design []float64) bool {
	if d.lastX == nil {
		return false
	}
	for i, v := range design {
		if d.lastX[i] != v {
			return false
		}
	}
	return true
}

// evaluate runs the oracle with gradients at a fresh design point and
// caches the assembled constraint rows.
func (d *Driver) evaluate(design []float64) error {
	layout := d.pmap.Apply(design)

	values, ojac, err := d.oracle.Evaluate(layout, true)
	if err != nil {
		return fmt.Errorf("oracle evaluation: %w", err)
	}
	if len(values) != d.rows || len(ojac) != d.rows {
		return fmt.Errorf("epigraph: oracle returned %d values and %d gradient rows, expected %d", len(values), len(ojac), d.rows)
	}
	if err := checkFinite(values, ojac); err != nil {
		return err
	}

	jac := make([][]float64, d.rows)
	for i, row := range ojac {
		// Chain rule through the parametrization, plus the -1 column
		// for the epigraph variable.
		back := d.pmap.VJP(design, row)
		r := make([]float64, d.dim+1)
		r[0] = -1
		copy(r[1:], back)
		jac[i] = r
	}

	d.lastX = append(d.lastX[:0], design...)
	d.lastF = values
	d.lastJac = jac
	return nil
}

// Worst evaluates the oracle forward-only at a raw design and returns the
// maximum objective value along with the full vector.
func (d *Driver) Worst(design []float64) (float64, []float64, error) {
	if len(design) != d.dim {
		return 0, nil, fmt.Errorf("epigraph: design dimension %d, expected %d", len(design), d.dim)
	}

	values, _, err := d.oracle.Evaluate(d.pmap.Apply(design), false)
	if err != nil {
		return 0, nil, fmt.Errorf("oracle evaluation: %w", err)
	}
	if len(values) != d.rows {
		return 0, nil, fmt.Errorf("epigraph: oracle returned %d values, expected %d", len(values), d.rows)
	}
	if err := checkFinite(values, nil); err != nil {
		return 0, nil, err
	}
	return worstOf(values), values, nil
}

// WorstObserved is Worst plus observer notification: the evaluation is
// reported with the worst value standing in for the epigraph variable.
// Derivative-free solvers, which never call Constraints, evaluate through
// it so traces and progress streams still see every candidate.
func (d *Driver) WorstObserved(design []float64) (float64, []float64, error) {
	worst, values, err := d.Worst(design)
	if err != nil {
		return 0, nil, err
	}
	d.notify(worst, values)
	return worst, values, nil
}

// Init evaluates the initial design forward-only and prepends the starting
// epigraph value t0 = margin · max_i f_i, so the first iterate is strictly
// feasible. The returned vector is the solver's starting point.
func (d *Driver) Init(design []float64) ([]float64, error) {
	worst, _, err := d.Worst(design)
	if err != nil {
		return nil, err
	}

	x := make([]float64, d.N())
	x[0] = d.margin * worst
	copy(x[1:], design)
	return x, nil
}

func worstOf(values []float64) float64 {
	worst := math.Inf(-1)
	for _, v := range values {
		if v > worst {
			worst = v
		}
	}
	return worst
}

func checkFinite(values []float64, jac [][]float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("objective row %d: %w", i, ErrNonFinite)
		}
	}
	for i, row := range jac {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("gradient row %d: %w", i, ErrNonFinite)
			}
		}
	}
	return nil
}
