package param

// BoxFilter smooths the design vector with a normalized moving average of
// the given radius. Smoothing enforces a minimum feature size on the
// optimized density pattern; windows are truncated at the array edges and
// renormalized so the filter preserves constant inputs.
type BoxFilter struct {
	Radius int
}

func (f BoxFilter) window(i, n int) (lo, hi int) {
	lo = i - f.Radius
	if lo < 0 {
		lo = 0
	}
	hi = i + f.Radius
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}

func (f BoxFilter) Apply(x []float64) []float64 {
	n := len(x)
	y := make([]float64, n)
	for i := range y {
		lo, hi := f.window(i, n)
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += x[j]
		}
		y[i] = sum / float64(hi-lo+1)
	}
	return y
}

// VJP exploits that the filter is linear: (uᵀJ)_j sums u_i/count_i over
// every output window i containing cell j.
func (f BoxFilter) VJP(x, u []float64) []float64 {
	n := len(x)
	v := make([]float64, n)
	for i := range u {
		lo, hi := f.window(i, n)
		w := u[i] / float64(hi-lo+1)
		for j := lo; j <= hi; j++ {
			v[j] += w
		}
	}
	return v
}

func (BoxFilter) OutDim(in int) int { return in }
