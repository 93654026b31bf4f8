package matrix

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

var ErrNotPositiveDefinite = errors.New("covariance is not positive definite")

// Density is a multivariate normal distribution with a fixed mean and
// covariance.
type Density interface {
	Dim() int
	// LogProb returns the log density at x.
	LogProb(x []float64) float64
	// Rand fills dst with a draw and returns it. A nil dst is allocated.
	Rand(dst []float64, rng *rand.Rand) []float64
}

// Backend performs the numeric heavy lifting for the HMM engine. The engine's
// control flow only talks to this interface.
type Backend interface {
	Gaussian(mu []float64, sigma mat.Symmetric) (Density, error)
	LogSumExp(x []float64) float64
}

// Gonum is the default CPU backend.
type Gonum struct{}

func (Gonum) LogSumExp(x []float64) float64 {
	return LogSumExp(x)
}

func (Gonum) Gaussian(mu []float64, sigma mat.Symmetric) (Density, error) {
	return NewGaussian(mu, sigma)
}

// Gaussian evaluates and samples a multivariate normal through the Cholesky
// factor of its covariance.
type Gaussian struct {
	mu    []float64
	chol  mat.Cholesky
	lower mat.TriDense
	// -0.5 * (D log 2pi + log|Sigma|)
	logNorm float64
}

func NewGaussian(mu []float64, sigma mat.Symmetric) (*Gaussian, error) {
	d := len(mu)
	if sigma.SymmetricDim() != d {
		return nil, fmt.Errorf("covariance has dimension %d, mean has %d", sigma.SymmetricDim(), d)
	}

	g := &Gaussian{mu: append([]float64(nil), mu...)}
	if !g.chol.Factorize(sigma) {
		return nil, ErrNotPositiveDefinite
	}
	g.chol.LTo(&g.lower)
	g.logNorm = -0.5 * (float64(d)*math.Log(2*math.Pi) + g.chol.LogDet())

	return g, nil
}

func (g *Gaussian) Dim() int {
	return len(g.mu)
}

func (g *Gaussian) LogProb(x []float64) float64 {
	d := len(g.mu)
	if len(x) != d {
		panic(fmt.Errorf("observation has dimension %d, want %d", len(x), d))
	}

	diff := make([]float64, d)
	for i := range d {
		diff[i] = x[i] - g.mu[i]
	}

	/* Solve L z = (x - mu) so that the Mahalanobis distance is |z|^2 */
	var z mat.VecDense
	if err := z.SolveVec(&g.lower, mat.NewVecDense(d, diff)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return math.NaN()
		}
	}
	return g.logNorm - 0.5*mat.Dot(&z, &z)
}

func (g *Gaussian) Rand(dst []float64, rng *rand.Rand) []float64 {
	d := len(g.mu)
	if dst == nil {
		dst = make([]float64, d)
	}
	if len(dst) != d {
		panic(fmt.Errorf("destination has length %d, want %d", len(dst), d))
	}

	z := make([]float64, d)
	for i := range z {
		z[i] = rng.NormFloat64()
	}

	out := mat.NewVecDense(d, dst)
	out.MulVec(&g.lower, mat.NewVecDense(d, z))
	for i := range d {
		dst[i] += g.mu[i]
	}
	return dst
}
