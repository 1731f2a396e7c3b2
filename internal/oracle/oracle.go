package oracle

import "fmt"

// Oracle is an opaque differentiable function F: R^in -> R^out, typically
// backed by an electromagnetic simulation with adjoint gradients. The
// driver treats it as a black box: values in a fixed row ordering, plus an
// optional Jacobian.
type Oracle interface {
	// Inputs reports the layout dimension the oracle expects.
	Inputs() int

	// Outputs reports the number of objective rows the oracle produces.
	// The ordering of rows is fixed at construction and stable across calls.
	Outputs() int

	// Evaluate computes the objective values at the given layout.
	// When needGrad is true, jac holds one row per output with the partial
	// derivatives with respect to the layout; otherwise jac is nil.
	// Forward-only evaluation is cheap and used for initialization.
	Evaluate(layout []float64, needGrad bool) (values []float64, jac [][]float64, err error)
}

func checkInputs(name string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: layout dimension %d, expected %d", name, got, want)
	}
	return nil
}

// Linear is the affine oracle F(y) = A·y + B, with constant Jacobian A.
// Used for driver verification against closed-form optima.
type Linear struct {
	A [][]float64
	B []float64
}

func (l *Linear) Inputs() int {
	if len(l.A) == 0 {
		return 0
	}
	return len(l.A[0])
}

func (l *Linear) Outputs() int { return len(l.A) }

func (l *Linear) Evaluate(layout []float64, needGrad bool) ([]float64, [][]float64, error) {
	if err := checkInputs("linear oracle", len(layout), l.Inputs()); err != nil {
		return nil, nil, err
	}

	values := make([]float64, len(l.A))
	for i, row := range l.A {
		v := 0.0
		for j, a := range row {
			v += a * layout[j]
		}
		if l.B != nil {
			v += l.B[i]
		}
		values[i] = v
	}

	if !needGrad {
		return values, nil, nil
	}

	jac := make([][]float64, len(l.A))
	for i, row := range l.A {
		jac[i] = make([]float64, len(row))
		copy(jac[i], row)
	}
	return values, jac, nil
}
