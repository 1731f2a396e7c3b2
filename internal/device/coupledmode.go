package device

import (
	"fmt"
	"math"
)

// CoupledMode is a differentiable coupled-mode-theory surrogate for the
// directional coupler. It stands in for the full-wave adjoint simulation:
// the coupling coefficient is an affine function of the mean design
// density, cross-port transfer over length L at wavelength λ is
// sin²(π·κ·L/λ), and the objective rows are
//
//	insertion-loss: 1 - sin²(π·κ·CrossLength/λ)   (per wavelength)
//	crosstalk:          cos²(π·κ·BarLength/λ)     (per wavelength)
//
// in the Problem's kind-major row ordering. Gradients are exact.
type CoupledMode struct {
	Wavelengths []float64
	Cells       int
	CrossLength float64
	BarLength   float64
	Kappa0      float64
	KappaSlope  float64
}

// Oracle builds the surrogate simulator for this problem.
func (p *Problem) Oracle() *CoupledMode {
	return &CoupledMode{
		Wavelengths: p.Wavelengths,
		Cells:       p.Cells,
		CrossLength: p.CrossLength,
		BarLength:   p.BarLength,
		Kappa0:      p.Kappa0,
		KappaSlope:  p.KappaSlope,
	}
}

func (cm *CoupledMode) Inputs() int  { return cm.Cells }
func (cm *CoupledMode) Outputs() int { return len(kinds) * len(cm.Wavelengths) }

func (cm *CoupledMode) Evaluate(layout []float64, needGrad bool) ([]float64, [][]float64, error) {
	if len(layout) != cm.Cells {
		return nil, nil, fmt.Errorf("coupled-mode oracle: layout dimension %d, expected %d", len(layout), cm.Cells)
	}

	mean := 0.0
	for _, v := range layout {
		mean += v
	}
	mean /= float64(cm.Cells)
	kappa := cm.Kappa0 + cm.KappaSlope*mean

	nw := len(cm.Wavelengths)
	values := make([]float64, cm.Outputs())
	var jac [][]float64
	if needGrad {
		jac = make([][]float64, cm.Outputs())
	}

	// dκ/dρ_j is uniform over cells.
	dKappa := cm.KappaSlope / float64(cm.Cells)

	for w, wl := range cm.Wavelengths {
		thetaC := math.Pi * kappa * cm.CrossLength / wl
		thetaB := math.Pi * kappa * cm.BarLength / wl

		sinC := math.Sin(thetaC)
		cosB := math.Cos(thetaB)

		values[w] = 1 - sinC*sinC
		values[nw+w] = cosB * cosB

		if !needGrad {
			continue
		}

		// d(1-sin²θ)/dκ = -sin(2θ)·πL/λ, d(cos²θ)/dκ likewise.
		dLoss := -math.Sin(2*thetaC) * math.Pi * cm.CrossLength / wl
		dXtalk := -math.Sin(2*thetaB) * math.Pi * cm.BarLength / wl

		lossRow := make([]float64, cm.Cells)
		xtalkRow := make([]float64, cm.Cells)
		for j := range lossRow {
			lossRow[j] = dLoss * dKappa
			xtalkRow[j] = dXtalk * dKappa
		}
		jac[w] = lossRow
		jac[nw+w] = xtalkRow
	}

	return values, jac, nil
}
