package oracle

// CallCounter wraps an Oracle and counts Evaluate invocations, split by
// forward-only and gradient calls. Used in tests to verify that cached
// results are reused instead of re-running an expensive simulation.
type CallCounter struct {
	Oracle

	Forward  int
	Gradient int
}

func (c *CallCounter) Evaluate(layout []float64, needGrad bool) ([]float64, [][]float64, error) {
	if needGrad {
		c.Gradient++
	} else {
		c.Forward++
	}
	return c.Oracle.Evaluate(layout, needGrad)
}

// Calls reports the total number of oracle evaluations.
func (c *CallCounter) Calls() int { return c.Forward + c.Gradient }
