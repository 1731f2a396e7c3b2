package param

import "math"

// TanhProject pushes intermediate densities toward 0 or 1 with the
// standard threshold projection
//
//	y = (tanh(β·η) + tanh(β·(x-η))) / (tanh(β·η) + tanh(β·(1-η)))
//
// Beta controls the projection strength, Eta the threshold level.
// The map is smooth for any finite Beta, so gradients stay well defined
// throughout a continuation schedule.
type TanhProject struct {
	Beta float64
	Eta  float64
}

func (p TanhProject) denom() float64 {
	return math.Tanh(p.Beta*p.Eta) + math.Tanh(p.Beta*(1-p.Eta))
}

func (p TanhProject) Apply(x []float64) []float64 {
	y := make([]float64, len(x))
	tEta, d := math.Tanh(p.Beta*p.Eta), p.denom()
	for i, v := range x {
		y[i] = (tEta + math.Tanh(p.Beta*(v-p.Eta))) / d
	}
	return y
}

func (p TanhProject) VJP(x, u []float64) []float64 {
	v := make([]float64, len(x))
	d := p.denom()
	for i, xi := range x {
		th := math.Tanh(p.Beta * (xi - p.Eta))
		// d/dx tanh(β(x-η)) = β·(1 - tanh²)
		v[i] = u[i] * p.Beta * (1 - th*th) / d
	}
	return v
}

func (TanhProject) OutDim(in int) int { return in }
