package hmm

import (
	"math"
	"math/rand/v2"

	"github.com/LucaChot/ghmm/src/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Initialize builds starting parameters for states hidden states from the
// pooled observations of batch. Means are seeded with k-means++ and refined
// by Lloyd iterations, covariances are the per-cluster covariances (the
// pooled covariance for clusters with too few members) and pi and A are
// uniform. The WithSeed option drives every random choice.
func (e *Engine) Initialize(batch Batch, states int, opts ...FitOption) (*Params, error) {
	options := defaultFitOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if err := options.check(); err != nil {
		return nil, err
	}
	if states <= 0 {
		return nil, invalidArgument("number of states must be positive, got %d", states)
	}

	n, t, d, err := batch.Shape()
	if err != nil {
		return nil, err
	}
	points := make([][]float64, 0, n*t)
	for _, seq := range batch {
		points = append(points, seq...)
	}
	if len(points) < states {
		return nil, invalidArgument("batch has %d observations, need at least %d", len(points), states)
	}

	rng := NewRand(options.seed)
	centers := seedCenters(points, states, rng)
	assign := lloyd(points, centers, options.initIterations)

	global := pooledCovariance(points, nil, -1, d)
	sigma := make([]*mat.SymDense, states)
	for k := range states {
		cov := global
		if c := clusterCovariance(points, assign, k, d); c != nil {
			cov = c
		}
		reg, _, err := matrix.Regularize(cov, options.regularization, options.regularizationAttempts)
		if err != nil {
			return nil, &NumericalInstabilityError{Sequence: -1, Time: -1, State: k, Value: cov.At(0, 0), Op: "initial covariance"}
		}
		sigma[k] = reg
	}

	pi := make([]float64, states)
	for i := range pi {
		pi[i] = 1 / float64(states)
	}
	a := mat.NewDense(states, states, nil)
	for i := range states {
		for j := range states {
			a.Set(i, j, 1/float64(states))
		}
	}

	p := newParamsUnchecked(pi, a, centers, sigma)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	e.logger.WithField("states", states).Debug("initialized parameters with k-means++")
	return p, nil
}

// seedCenters picks k starting centers: the first uniformly, each further
// one with probability proportional to its squared distance to the nearest
// chosen center.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), points[rng.IntN(len(points))]...))

	dist := make([]float64, len(points))
	for i, x := range points {
		dist[i] = sqDist(x, centers[0])
	}

	for len(centers) < k {
		total := floats.Sum(dist)
		next := rng.IntN(len(points))
		if total > 0 {
			target := rng.Float64() * total
			var cum float64
			for i, w := range dist {
				cum += w
				if target < cum {
					next = i
					break
				}
			}
		}

		c := append([]float64(nil), points[next]...)
		centers = append(centers, c)
		for i, x := range points {
			dist[i] = math.Min(dist[i], sqDist(x, c))
		}
	}
	return centers
}

// lloyd refines centers in place and returns the final assignment. Ties go
// to the lowest center index; empty clusters keep their center.
func lloyd(points [][]float64, centers [][]float64, rounds int) []int {
	k, d := len(centers), len(centers[0])
	assign := make([]int, len(points))
	nearestAll := func() bool {
		changed := false
		for i, x := range points {
			best, arg := math.Inf(1), 0
			for c := range k {
				if v := sqDist(x, centers[c]); v < best {
					best, arg = v, c
				}
			}
			if assign[i] != arg {
				assign[i] = arg
				changed = true
			}
		}
		return changed
	}

	nearestAll()
	for range rounds {
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range k {
			sums[c] = make([]float64, d)
		}
		for i, x := range points {
			floats.Add(sums[assign[i]], x)
			counts[assign[i]]++
		}
		for c := range k {
			if counts[c] > 0 {
				floats.ScaleTo(centers[c], 1/float64(counts[c]), sums[c])
			}
		}
		if !nearestAll() {
			break
		}
	}
	return assign
}

// clusterCovariance returns the covariance of cluster k, or nil when the
// cluster has no more members than dimensions.
func clusterCovariance(points [][]float64, assign []int, k, d int) *mat.SymDense {
	count := 0
	for _, a := range assign {
		if a == k {
			count++
		}
	}
	if count <= d {
		return nil
	}
	return pooledCovariance(points, assign, k, d)
}

// pooledCovariance is the covariance of the points assigned to k, or of all
// points when assign is nil.
func pooledCovariance(points [][]float64, assign []int, k, d int) *mat.SymDense {
	sum := mat.NewVecDense(d, nil)
	sumSq := mat.NewSymDense(d, nil)
	var w float64
	for i, x := range points {
		if assign != nil && assign[i] != k {
			continue
		}
		matrix.WeightedMoments(sum, sumSq, x, 1)
		w++
	}
	_, cov := matrix.Covariance(sum, sumSq, w)
	return cov
}

func sqDist(x, y []float64) float64 {
	var s float64
	for i := range x {
		diff := x[i] - y[i]
		s += diff * diff
	}
	return s
}
