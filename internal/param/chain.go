package param

// Chain composes maps left to right: Chain{a, b}.Apply(x) == b.Apply(a.Apply(x)).
// The VJP runs the stages in reverse, re-evaluating the forward pass to
// recover each stage's input.
type Chain []Map

func (c Chain) Apply(x []float64) []float64 {
	y := x
	for _, m := range c {
		y = m.Apply(y)
	}
	return y
}

func (c Chain) VJP(x, u []float64) []float64 {
	// Forward pass, keeping the input to every stage.
	inputs := make([][]float64, len(c))
	y := x
	for i, m := range c {
		inputs[i] = y
		y = m.Apply(y)
	}
	v := u
	for i := len(c) - 1; i >= 0; i-- {
		v = c[i].VJP(inputs[i], v)
	}
	return v
}

func (c Chain) OutDim(in int) int {
	out := in
	for _, m := range c {
		out = m.OutDim(out)
	}
	return out
}
