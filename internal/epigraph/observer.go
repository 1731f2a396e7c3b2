package epigraph

// Snapshot is the per-evaluation payload handed to observers: the 0-based
// evaluation index, the current epigraph value t and the raw objective
// vector in the oracle's row ordering. Objectives is a private copy that
// observers may retain.
type Snapshot struct {
	Iteration  int
	Epigraph   float64
	Objectives []float64
}

// Observer is a side-effecting hook (logging, persistence, streaming)
// invoked after each fresh oracle evaluation. Observers registered on a
// Driver run sequentially in registration order, on the solver goroutine.
type Observer func(Snapshot)

// History is the append-only record of an optimization run. The recording
// observer is its single writer; everything else reads after the run.
type History struct {
	snaps []Snapshot
}

// Record is the Observer that appends to the history.
func (h *History) Record(s Snapshot) {
	h.snaps = append(h.snaps, s)
}

// Len reports the number of recorded evaluations.
func (h *History) Len() int { return len(h.snaps) }

// At returns the i-th recorded snapshot.
func (h *History) At(i int) Snapshot { return h.snaps[i] }

// Last returns the most recent snapshot, or false when nothing was recorded.
func (h *History) Last() (Snapshot, bool) {
	if len(h.snaps) == 0 {
		return Snapshot{}, false
	}
	return h.snaps[len(h.snaps)-1], true
}

// Epigraphs returns the epigraph value trajectory.
func (h *History) Epigraphs() []float64 {
	out := make([]float64, len(h.snaps))
	for i, s := range h.snaps {
		out[i] = s.Epigraph
	}
	return out
}
