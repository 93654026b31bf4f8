package hmm

import "math"

// Batch is a set of observation sequences indexed [sequence][time][dimension].
type Batch [][][]float64

// Sample is the output of the sampler. States has shape [N,T] and Emissions
// has shape [N,T,D].
type Sample struct {
	States    [][]int
	Emissions Batch
}

// Shape returns N, T and D after checking that every sequence has the same
// length and every observation the same dimension.
func (b Batch) Shape() (n, t, d int, err error) {
	n = len(b)
	if n == 0 {
		return 0, 0, 0, invalidArgument("batch has no sequences")
	}
	t = len(b[0])
	if t == 0 {
		return 0, 0, 0, invalidArgument("sequences must not be empty")
	}
	d = len(b[0][0])
	if d == 0 {
		return 0, 0, 0, invalidArgument("observations must not be empty")
	}

	for i, seq := range b {
		if len(seq) != t {
			return 0, 0, 0, invalidArgument("sequence %d has length %d, want %d", i, len(seq), t)
		}
		for j, x := range seq {
			if len(x) != d {
				return 0, 0, 0, invalidArgument("observation (%d,%d) has dimension %d, want %d", i, j, len(x), d)
			}
			for _, v := range x {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return 0, 0, 0, invalidArgument("observation (%d,%d) contains %v", i, j, v)
				}
			}
		}
	}
	return n, t, d, nil
}

// check validates the batch against a model with d emission dimensions.
func (b Batch) check(d int) (n, t int, err error) {
	n, t, bd, err := b.Shape()
	if err != nil {
		return 0, 0, err
	}
	if bd != d {
		return 0, 0, invalidArgument("batch has dimension %d, model has %d", bd, d)
	}
	return n, t, nil
}
