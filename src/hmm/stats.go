package hmm

import (
	"math"

	"github.com/LucaChot/ghmm/src/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Expected occupancy below this is treated as an unused state.
const minOccupancy = 1e-10

// sufficientStats accumulates one Baum-Welch iteration's expected counts.
// It belongs to a single iteration and is dropped once maximize has run.
type sufficientStats struct {
	s, d      int
	sequences int
	ll        float64

	start     []float64 // sum of gamma[0]
	trans     []float64 // sum of xi, [i*S+j]
	occupancy []float64 // sum of gamma over all steps
	sum       []*mat.VecDense
	sumSq     []*mat.SymDense
}

func newSufficientStats(s, d int) *sufficientStats {
	st := &sufficientStats{
		s:         s,
		d:         d,
		start:     make([]float64, s),
		trans:     make([]float64, s*s),
		occupancy: make([]float64, s),
		sum:       make([]*mat.VecDense, s),
		sumSq:     make([]*mat.SymDense, s),
	}
	for i := range s {
		st.sum[i] = mat.NewVecDense(d, nil)
		st.sumSq[i] = mat.NewSymDense(d, nil)
	}
	return st
}

// add folds one sequence's posteriors into the accumulators.
func (st *sufficientStats) add(tb *tables, seq [][]float64) {
	s := st.s
	st.sequences++
	st.ll += tb.ll

	floats.Add(st.start, tb.gamma[:s])
	if len(tb.xi) > 0 {
		for step := 0; step < len(seq)-1; step++ {
			floats.Add(st.trans, tb.xi[step*s*s:(step+1)*s*s])
		}
	}
	for step, x := range seq {
		for j := range s {
			w := tb.gamma[step*s+j]
			st.occupancy[j] += w
			matrix.WeightedMoments(st.sum[j], st.sumSq[j], x, w)
		}
	}
}

// merge adds other into st.
func (st *sufficientStats) merge(other *sufficientStats) {
	st.sequences += other.sequences
	st.ll += other.ll
	floats.Add(st.start, other.start)
	floats.Add(st.trans, other.trans)
	floats.Add(st.occupancy, other.occupancy)
	for j := range st.s {
		st.sum[j].AddVec(st.sum[j], other.sum[j])
		st.sumSq[j].AddSym(st.sumSq[j], other.sumSq[j])
	}
}

// maximize re-estimates the parameters. States or transition rows without
// expected occupancy keep their values from prev. Covariances that are not
// positive definite get a ridge of eps*I, growing tenfold per attempt.
func (st *sufficientStats) maximize(prev *Params, eps float64, attempts int) (*Params, error) {
	s := st.s

	pi := make([]float64, s)
	copy(pi, st.start)
	if err := normalize(pi); err != nil {
		return nil, &NumericalInstabilityError{Sequence: -1, Time: 0, State: -1, Value: floats.Sum(st.start), Op: "initial distribution update"}
	}

	a := mat.NewDense(s, s, nil)
	for i := range s {
		row := make([]float64, s)
		copy(row, st.trans[i*s:(i+1)*s])
		if floats.Sum(row) < minOccupancy {
			row = prev.a.RawRowView(i)
		} else if err := normalize(row); err != nil {
			return nil, &NumericalInstabilityError{Sequence: -1, Time: -1, State: i, Value: floats.Sum(row), Op: "transition update"}
		}
		a.SetRow(i, row)
	}

	mu := make([][]float64, s)
	sigma := make([]*mat.SymDense, s)
	for j := range s {
		if st.occupancy[j] < minOccupancy {
			mu[j] = append([]float64(nil), prev.mu[j]...)
			sigma[j] = mat.NewSymDense(st.d, nil)
			sigma[j].CopySym(prev.sigma[j])
			continue
		}

		mean, cov := matrix.Covariance(st.sum[j], st.sumSq[j], st.occupancy[j])
		mu[j] = mean.RawVector().Data

		reg, _, err := matrix.Regularize(cov, eps, attempts)
		if err != nil {
			return nil, &NumericalInstabilityError{Sequence: -1, Time: -1, State: j, Value: cov.At(0, 0), Op: "covariance update"}
		}
		sigma[j] = reg
	}

	next := newParamsUnchecked(pi, a, mu, sigma)
	for j := range s {
		for _, v := range mu[j] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &NumericalInstabilityError{Sequence: -1, Time: -1, State: j, Value: v, Op: "mean update"}
			}
		}
	}
	if err := next.Validate(); err != nil {
		return nil, &NumericalInstabilityError{Sequence: -1, Time: -1, State: -1, Value: math.NaN(), Op: "parameter validation", Cause: err}
	}
	return next, nil
}

// normalize rescales x to sum to one.
func normalize(x []float64) error {
	sum := floats.Sum(x)
	if !(sum > 0) || math.IsInf(sum, 0) {
		return ErrNumericalInstability
	}
	floats.Scale(1/sum, x)
	return nil
}
