package param

// Map is a differentiable transformation from raw optimization variables
// to physical layout variables. Implementations must expose both the
// forward evaluation and a vector-Jacobian product so that gradient
// information from an adjoint oracle can be chained back to the raw
// variables without finite differences.
type Map interface {
	// Apply maps raw variables x to layout variables.
	Apply(x []float64) []float64

	// VJP returns uᵀJ where J is the Jacobian of Apply at x.
	// len(u) must equal OutDim(len(x)).
	VJP(x, u []float64) []float64

	// OutDim reports the output dimension for an input of size in.
	OutDim(in int) int
}

// Identity maps raw variables directly to the layout.
type Identity struct{}

func (Identity) Apply(x []float64) []float64 {
	y := make([]float64, len(x))
	copy(y, x)
	return y
}

func (Identity) VJP(x, u []float64) []float64 {
	v := make([]float64, len(u))
	copy(v, u)
	return v
}

func (Identity) OutDim(in int) int { return in }
