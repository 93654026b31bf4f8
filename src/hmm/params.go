package hmm

import (
	"fmt"
	"math"

	"github.com/LucaChot/ghmm/src/matrix"
	"gonum.org/v1/gonum/mat"
)

const (
	// StochasticTolerance bounds |sum-1| for pi and each row of A.
	StochasticTolerance = 1e-6
	// SymmetryTolerance bounds the relative asymmetry of a covariance.
	SymmetryTolerance = 1e-9
)

// ParameterSet is the plain-slice form of Params. Its shapes are
// pi [S], A [S,S], mu [S,D] and Sigma [S,D,D].
type ParameterSet struct {
	Pi    []float64     `yaml:"pi" json:"pi"`
	A     [][]float64   `yaml:"A" json:"A"`
	Mu    [][]float64   `yaml:"mu" json:"mu"`
	Sigma [][][]float64 `yaml:"Sigma" json:"Sigma"`
}

// Params holds a validated set of HMM parameters. A Params value is never
// modified after construction, so it can be shared between goroutines.
type Params struct {
	pi    []float64
	a     *mat.Dense
	mu    [][]float64
	sigma []*mat.SymDense
}

// NewParams validates and copies the given parameters.
func NewParams(pi []float64, a [][]float64, mu [][]float64, sigma [][][]float64) (*Params, error) {
	s := len(pi)
	if s == 0 {
		return nil, invalidParameter("pi must not be empty")
	}
	if len(a) != s {
		return nil, invalidParameter("A has %d rows, want %d", len(a), s)
	}
	if len(mu) != s {
		return nil, invalidParameter("mu has %d rows, want %d", len(mu), s)
	}
	if len(sigma) != s {
		return nil, invalidParameter("Sigma has %d entries, want %d", len(sigma), s)
	}
	d := len(mu[0])
	if d == 0 {
		return nil, invalidParameter("emission dimension must be positive")
	}

	p := &Params{
		pi:    append([]float64(nil), pi...),
		a:     mat.NewDense(s, s, nil),
		mu:    make([][]float64, s),
		sigma: make([]*mat.SymDense, s),
	}

	for i := range s {
		if len(a[i]) != s {
			return nil, invalidParameter("A row %d has length %d, want %d", i, len(a[i]), s)
		}
		p.a.SetRow(i, a[i])

		if len(mu[i]) != d {
			return nil, invalidParameter("mu[%d] has dimension %d, want %d", i, len(mu[i]), d)
		}
		p.mu[i] = append([]float64(nil), mu[i]...)

		if len(sigma[i]) != d {
			return nil, invalidParameter("Sigma[%d] has %d rows, want %d", i, len(sigma[i]), d)
		}
		sym, err := matrix.NewSym(sigma[i], SymmetryTolerance)
		if err != nil {
			return nil, invalidParameter("Sigma[%d]: %v", i, err)
		}
		p.sigma[i] = sym
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// FromSet is NewParams for a ParameterSet.
func FromSet(ps ParameterSet) (*Params, error) {
	return NewParams(ps.Pi, ps.A, ps.Mu, ps.Sigma)
}

// newParamsUnchecked wraps already-owned storage without copying.
func newParamsUnchecked(pi []float64, a *mat.Dense, mu [][]float64, sigma []*mat.SymDense) *Params {
	return &Params{pi: pi, a: a, mu: mu, sigma: sigma}
}

// Validate checks the stochasticity and positive definiteness invariants.
// It has no side effects and can be called any number of times.
func (p *Params) Validate() error {
	s := len(p.pi)
	if err := checkDistribution("pi", p.pi); err != nil {
		return err
	}
	for i := range s {
		if err := checkDistribution(fmt.Sprintf("A row %d", i), p.a.RawRowView(i)); err != nil {
			return err
		}
	}
	for i := range s {
		for _, v := range p.mu[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return invalidParameter("mu[%d] contains non-finite value %v", i, v)
			}
		}
		if !matrix.IsPositiveDefinite(p.sigma[i]) {
			return invalidParameter("Sigma[%d] is not positive definite", i)
		}
	}
	return nil
}

func checkDistribution(name string, x []float64) error {
	var sum float64
	for j, v := range x {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidParameter("%s entry %d is %v", name, j, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > StochasticTolerance {
		return invalidParameter("%s sums to %v", name, sum)
	}
	return nil
}

// States returns S.
func (p *Params) States() int {
	return len(p.pi)
}

// Dimensions returns D.
func (p *Params) Dimensions() int {
	return len(p.mu[0])
}

func (p *Params) Pi() []float64 {
	return append([]float64(nil), p.pi...)
}

func (p *Params) A() [][]float64 {
	return matrix.Rows(p.a)
}

func (p *Params) Mu() [][]float64 {
	out := make([][]float64, len(p.mu))
	for i := range p.mu {
		out[i] = append([]float64(nil), p.mu[i]...)
	}
	return out
}

func (p *Params) Sigma() [][][]float64 {
	out := make([][][]float64, len(p.sigma))
	for i := range p.sigma {
		out[i] = matrix.Rows(p.sigma[i])
	}
	return out
}

// Set returns a copy of the parameters as plain slices.
func (p *Params) Set() ParameterSet {
	return ParameterSet{Pi: p.Pi(), A: p.A(), Mu: p.Mu(), Sigma: p.Sigma()}
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	sigma := make([]*mat.SymDense, len(p.sigma))
	for i := range p.sigma {
		sigma[i] = mat.NewSymDense(p.sigma[i].SymmetricDim(), nil)
		sigma[i].CopySym(p.sigma[i])
	}
	return newParamsUnchecked(p.Pi(), mat.DenseCopyOf(p.a), p.Mu(), sigma)
}

// Equal reports whether every entry of p and q agrees within tol.
func (p *Params) Equal(q *Params, tol float64) bool {
	if p.States() != q.States() || p.Dimensions() != q.Dimensions() {
		return false
	}
	for i := range p.pi {
		if math.Abs(p.pi[i]-q.pi[i]) > tol {
			return false
		}
		if !approxSlice(p.mu[i], q.mu[i], tol) {
			return false
		}
		if !mat.EqualApprox(p.sigma[i], q.sigma[i], tol) {
			return false
		}
	}
	return mat.EqualApprox(p.a, q.a, tol)
}

func approxSlice(x, y []float64, tol float64) bool {
	for i := range x {
		if math.Abs(x[i]-y[i]) > tol {
			return false
		}
	}
	return true
}

// NumFreeParameters counts the free parameters of a full-covariance
// Gaussian HMM with this shape.
func (p *Params) NumFreeParameters() int {
	s, d := p.States(), p.Dimensions()
	df := s - 1               // initial distribution
	df += s * (s - 1)         // transition matrix
	df += s * d               // means
	df += s * d * (d + 1) / 2 // covariances
	return df
}

// logPi returns log(pi); zero probabilities map to -Inf.
func (p *Params) logPi() []float64 {
	out := make([]float64, len(p.pi))
	for i, v := range p.pi {
		out[i] = math.Log(v)
	}
	return out
}

// logA returns log(A) flattened in row-major order.
func (p *Params) logA() []float64 {
	s := len(p.pi)
	out := make([]float64, s*s)
	for i := range s {
		for j, v := range p.a.RawRowView(i) {
			out[i*s+j] = math.Log(v)
		}
	}
	return out
}
