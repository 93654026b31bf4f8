package alias

import (
	"errors"
	"math"
	"math/rand/v2"
)

// AliasTable holds the precomputed tables for the Alias Method.
type AliasTable struct {
	n     int       // Number of outcomes
	prob  []float64 // Probability table
	alias []int     // Alias table
}

// New creates a new AliasTable from a slice of weights.
// The weights must be non-negative, finite and sum to a positive value.
func New(weights []float64) (*AliasTable, error) {
	n := len(weights)
	if n == 0 {
		return nil, errors.New("weights slice cannot be empty")
	}

	var sum float64
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.New("weights must be finite and non-negative")
		}
		sum += w
	}

	if sum <= 0 {
		return nil, errors.New("sum of weights must be positive")
	}

	prob := make([]float64, n)
	alias := make([]int, n)
	normProb := make([]float64, n)

	// Worklists for items with probabilities smaller or larger than 1.0
	small := make([]int, 0, n)
	large := make([]int, 0, n)

	// Normalize probabilities so the average probability is 1.0
	for i, p := range weights {
		normP := p * float64(n) / sum
		normProb[i] = normP
		if normP < 1.0 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		s := small[len(small)-1]
		small = small[:len(small)-1]
		l := large[len(large)-1]
		large = large[:len(large)-1]

		prob[s] = normProb[s]
		alias[s] = l

		// Move the excess of the large item into the small bin and
		// reclassify it
		normProb[l] = normProb[l] - (1.0 - normProb[s])
		if normProb[l] < 1.0 {
			small = append(small, l)
		} else {
			large = append(large, l)
		}
	}

	// Leftovers are due to floating point inaccuracies and own their bin
	for _, idx := range large {
		prob[idx] = 1.0
		alias[idx] = idx
	}
	for _, idx := range small {
		prob[idx] = 1.0
		alias[idx] = idx
	}

	return &AliasTable{
		n:     n,
		prob:  prob,
		alias: alias,
	}, nil
}

// Len returns the number of outcomes.
func (at *AliasTable) Len() int {
	return at.n
}

// Sample returns an index drawn according to the original weights. It
// consumes exactly two values from rng so callers can rely on a fixed draw
// order.
func (at *AliasTable) Sample(rng *rand.Rand) int {
	// 1. Choose a column (bin) uniformly at random
	i := rng.IntN(at.n)

	// 2. Flip a biased coin for that column
	if rng.Float64() < at.prob[i] {
		return i
	}
	return at.alias[i]
}
