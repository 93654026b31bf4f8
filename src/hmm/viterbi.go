package hmm

import (
	"context"
	"math"
)

// viterbi returns the most probable state path of one sequence. Ties go to
// the lowest state index, both in the recursion and in the final argmax.
func (l *lattice) viterbi() ([]int, float64) {
	s, t := l.s, l.t
	delta := make([]float64, s)
	next := make([]float64, s)
	back := make([]int, t*s)

	for j := range s {
		delta[j] = l.logPi[j] + l.logB[j]
	}
	for step := 1; step < t; step++ {
		for j := range s {
			best, arg := math.Inf(-1), 0
			for i := range s {
				if v := delta[i] + l.logA[i*s+j]; v > best {
					best, arg = v, i
				}
			}
			next[j] = l.logB[step*s+j] + best
			back[step*s+j] = arg
		}
		delta, next = next, delta
	}

	best, state := math.Inf(-1), 0
	for j, v := range delta {
		if v > best {
			best, state = v, j
		}
	}

	path := make([]int, t)
	path[t-1] = state
	for step := t - 1; step > 0; step-- {
		state = back[step*s+state]
		path[step-1] = state
	}
	return path, best
}

// Decode returns the most probable hidden state path of every sequence,
// shape [N,T].
func (e *Engine) Decode(ctx context.Context, p *Params, batch Batch) ([][]int, error) {
	n, _, err := batch.check(p.Dimensions())
	if err != nil {
		return nil, err
	}
	pp, err := e.prepare(p)
	if err != nil {
		return nil, err
	}

	out := make([][]int, n)
	err = e.forEachSequence(ctx, n, func(i int) error {
		l, err := e.newLattice(pp, batch[i], i)
		if err != nil {
			return err
		}
		path, score := l.viterbi()
		if math.IsInf(score, -1) || math.IsNaN(score) {
			return &NumericalInstabilityError{
				Sequence: i, Time: -1, State: -1, Value: score, Op: "viterbi path score",
			}
		}
		out[i] = path
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
