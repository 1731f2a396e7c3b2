package device

import (
	"fmt"

	"github.com/photonforge/couplerfit/internal/param"
)

// Kind identifies one objective family evaluated per wavelength sample.
type Kind string

const (
	// KindInsertionLoss is the power not transferred to the cross port.
	KindInsertionLoss Kind = "insertion-loss"
	// KindCrosstalk is the residual power left in the bar port.
	KindCrosstalk Kind = "crosstalk"
)

// kinds is the fixed objective-kind ordering. Constraint rows are
// kind-major: all insertion-loss rows first, one per wavelength, then all
// crosstalk rows.
var kinds = []Kind{KindInsertionLoss, KindCrosstalk}

// Port names one waveguide port of the coupler.
type Port struct {
	Name string `yaml:"name"`
}

// Problem describes a waveguide-to-waveguide coupler inverse-design run:
// the physical constants of the coupled-mode surrogate, the design-region
// discretization, the parametrization settings and the wavelength samples
// the objectives are evaluated at. It owns the (kind × wavelength) row
// ordering contract that the epigraph driver and all observers rely on;
// the ordering is fixed once the problem is built.
type Problem struct {
	Input Port
	Cross Port
	Bar   Port

	// Wavelengths are the objective sample points in µm.
	Wavelengths []float64

	// Cells is the number of design-region discretization cells.
	Cells int

	// CrossLength and BarLength are the effective interaction lengths in
	// µm seen by the cross and bar ports of the coupler.
	CrossLength float64
	BarLength   float64

	// Kappa0 and KappaSlope define the affine coupling-coefficient model
	// κ(ρ) = Kappa0 + KappaSlope·mean(ρ), in 1/µm.
	Kappa0     float64
	KappaSlope float64

	// Parametrization settings: smoothing radius in cells and the
	// threshold-projection strength and level.
	FilterRadius int
	Beta         float64
	Eta          float64

	// Tolerance is the per-row feasibility slack of the epigraph
	// constraints.
	Tolerance float64
}

// Default returns the reference coupler problem: a C-band coupler sampled
// at three wavelengths with a 64-cell design region.
func Default() Problem {
	return Problem{
		Input:        Port{Name: "in0"},
		Cross:        Port{Name: "out1"},
		Bar:          Port{Name: "out0"},
		Wavelengths:  []float64{1.50, 1.55, 1.60},
		Cells:        64,
		CrossLength:  10.0,
		BarLength:    6.0,
		Kappa0:       0.02,
		KappaSlope:   0.12,
		FilterRadius: 2,
		Beta:         8,
		Eta:          0.5,
	}
}

// Validate rejects ill-posed problems before any evaluation happens.
func (p *Problem) Validate() error {
	switch {
	case len(p.Wavelengths) == 0:
		return fmt.Errorf("device: at least one wavelength sample is required")
	case p.Cells <= 0:
		return fmt.Errorf("device: %d design cells, must be positive", p.Cells)
	case p.CrossLength <= 0 || p.BarLength <= 0:
		return fmt.Errorf("device: coupler lengths must be positive")
	case p.FilterRadius < 0:
		return fmt.Errorf("device: filter radius %d, must not be negative", p.FilterRadius)
	case p.Beta < 0:
		return fmt.Errorf("device: projection beta %g, must not be negative", p.Beta)
	case p.Eta <= 0 || p.Eta >= 1:
		return fmt.Errorf("device: projection eta %g, must lie in (0,1)", p.Eta)
	case p.Tolerance < 0:
		return fmt.Errorf("device: tolerance %g, must not be negative", p.Tolerance)
	}
	for i, wl := range p.Wavelengths {
		if wl <= 0 {
			return fmt.Errorf("device: wavelength sample %d is %g µm", i, wl)
		}
	}
	if p.Cross.Name != "" && p.Cross.Name == p.Bar.Name {
		return fmt.Errorf("device: cross and bar ports both named %q", p.Cross.Name)
	}
	return nil
}

// Rows is the number of objective rows: one per (kind, wavelength) pair.
func (p *Problem) Rows() int { return len(kinds) * len(p.Wavelengths) }

// RowIndex maps a (kind, wavelength sample) pair to its constraint row.
func (p *Problem) RowIndex(k Kind, wl int) (int, error) {
	for ki, kind := range kinds {
		if kind == k {
			if wl < 0 || wl >= len(p.Wavelengths) {
				return 0, fmt.Errorf("device: wavelength index %d out of range", wl)
			}
			return ki*len(p.Wavelengths) + wl, nil
		}
	}
	return 0, fmt.Errorf("device: unknown objective kind %q", k)
}

// RowLabel names a constraint row for logs and traces, e.g.
// "insertion-loss@1.550µm".
func (p *Problem) RowLabel(i int) string {
	nw := len(p.Wavelengths)
	kind := kinds[i/nw]
	return fmt.Sprintf("%s@%.3fµm", kind, p.Wavelengths[i%nw])
}

// RowLabels lists all row labels in constraint order.
func (p *Problem) RowLabels() []string {
	labels := make([]string, p.Rows())
	for i := range labels {
		labels[i] = p.RowLabel(i)
	}
	return labels
}

// Tolerances expands the scalar feasibility slack to one entry per row.
func (p *Problem) Tolerances() []float64 {
	tol := make([]float64, p.Rows())
	for i := range tol {
		tol[i] = p.Tolerance
	}
	return tol
}

// Param builds the design parametrization chain: feature-size smoothing
// followed by threshold projection. A zero radius and beta reduce the
// chain to near-identity, which the tests exploit.
func (p *Problem) Param() param.Map {
	return param.Chain{
		param.BoxFilter{Radius: p.FilterRadius},
		param.TanhProject{Beta: p.Beta, Eta: p.Eta},
	}
}

// InitialDesign is the customary uniform half-density starting point.
func (p *Problem) InitialDesign() []float64 {
	design := make([]float64, p.Cells)
	for i := range design {
		design[i] = 0.5
	}
	return design
}
