package matrix

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLogSumExp(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"empty", nil, math.Inf(-1)},
		{"all -inf", []float64{math.Inf(-1), math.Inf(-1)}, math.Inf(-1)},
		{"single", []float64{-3}, -3},
		{"two equal", []float64{0, 0}, math.Log(2)},
		{"large magnitude", []float64{-1000, -1000}, -1000 + math.Log(2)},
		{"mixed -inf", []float64{math.Inf(-1), 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogSumExp(tt.x)
			if math.IsInf(tt.want, -1) {
				assert.True(t, math.IsInf(got, -1))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestSoftmax(t *testing.T) {
	x := []float64{math.Log(1), math.Log(3)}
	z := Softmax(x)

	assert.InDelta(t, math.Log(4), z, 1e-12)
	assert.InDelta(t, 0.25, x[0], 1e-12)
	assert.InDelta(t, 0.75, x[1], 1e-12)
}

func TestNewSym(t *testing.T) {
	s, err := NewSym([][]float64{{2, 0.5}, {0.5, 1}}, 1e-9)
	require.NoError(t, err)
	assert.Equal(t, 2, s.SymmetricDim())
	assert.Equal(t, 0.5, s.At(1, 0))

	_, err = NewSym([][]float64{{2, 0.5}, {0.4, 1}}, 1e-9)
	assert.Error(t, err)

	_, err = NewSym([][]float64{{2, 0.5}}, 1e-9)
	assert.Error(t, err)

	_, err = NewSym([][]float64{{math.NaN()}}, 1e-9)
	assert.Error(t, err)

	_, err = NewSym(nil, 1e-9)
	assert.Error(t, err)
}

func TestRegularize(t *testing.T) {
	pd := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	out, ridge, err := Regularize(pd, 1e-6, 5)
	require.NoError(t, err)
	assert.Zero(t, ridge)
	assert.True(t, mat.EqualApprox(pd, out, 0))

	/* Rank one, so only positive semi-definite */
	singular := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	assert.False(t, IsPositiveDefinite(singular))

	out, ridge, err = Regularize(singular, 1e-6, 10)
	require.NoError(t, err)
	assert.Greater(t, ridge, 0.0)
	assert.True(t, IsPositiveDefinite(out))

	negative := mat.NewSymDense(1, []float64{-5})
	_, _, err = Regularize(negative, 1e-6, 3)
	assert.Error(t, err)
}

func TestCovariance(t *testing.T) {
	sum := mat.NewVecDense(2, nil)
	sumSq := mat.NewSymDense(2, nil)

	points := [][]float64{{1, 2}, {3, 2}, {2, 5}, {2, -1}}
	for _, p := range points {
		WeightedMoments(sum, sumSq, p, 1)
	}
	/* Zero weight observations are ignored */
	WeightedMoments(sum, sumSq, []float64{100, 100}, 0)

	mean, cov := Covariance(sum, sumSq, float64(len(points)))
	assert.InDelta(t, 2.0, mean.AtVec(0), 1e-12)
	assert.InDelta(t, 2.0, mean.AtVec(1), 1e-12)
	assert.InDelta(t, 0.5, cov.At(0, 0), 1e-12)
	assert.InDelta(t, 4.5, cov.At(1, 1), 1e-12)
	assert.InDelta(t, 0.0, cov.At(0, 1), 1e-12)
}

func TestGaussianLogProb(t *testing.T) {
	/* Standard normal in one dimension */
	g, err := NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	require.NoError(t, err)
	assert.InDelta(t, -0.5*math.Log(2*math.Pi), g.LogProb([]float64{0}), 1e-12)
	assert.InDelta(t, -0.5*math.Log(2*math.Pi)-2, g.LogProb([]float64{2}), 1e-12)

	/* Diagonal covariance factorizes into independent terms */
	g, err = NewGaussian([]float64{1, -1}, mat.NewSymDense(2, []float64{4, 0, 0, 0.25}))
	require.NoError(t, err)
	x := []float64{3, 0}
	want := -0.5*math.Log(2*math.Pi*4) - 0.5*(4.0/4) +
		-0.5*math.Log(2*math.Pi*0.25) - 0.5*(1/0.25)
	assert.InDelta(t, want, g.LogProb(x), 1e-12)
	assert.Equal(t, 2, g.Dim())
}

func TestGaussianRejectsNonPD(t *testing.T) {
	_, err := NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{1, 2, 2, 1}))
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)

	_, err = Gonum{}.Gaussian([]float64{0}, mat.NewSymDense(2, []float64{1, 0, 0, 1}))
	assert.Error(t, err)
}

func TestGaussianRandMoments(t *testing.T) {
	mu := []float64{-1.5, 3.7}
	sigma := mat.NewSymDense(2, []float64{0.21, 0.05, 0.05, 0.03})
	g, err := NewGaussian(mu, sigma)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 7))
	sum := mat.NewVecDense(2, nil)
	sumSq := mat.NewSymDense(2, nil)
	const n = 20000
	x := make([]float64, 2)
	for range n {
		g.Rand(x, rng)
		WeightedMoments(sum, sumSq, x, 1)
	}
	mean, cov := Covariance(sum, sumSq, n)

	assert.InDelta(t, mu[0], mean.AtVec(0), 0.02)
	assert.InDelta(t, mu[1], mean.AtVec(1), 0.02)
	assert.InDelta(t, 0.21, cov.At(0, 0), 0.02)
	assert.InDelta(t, 0.05, cov.At(0, 1), 0.01)
	assert.InDelta(t, 0.03, cov.At(1, 1), 0.005)
}

func TestGaussianRandDeterministic(t *testing.T) {
	g, err := NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{1, 0.3, 0.3, 2}))
	require.NoError(t, err)

	a := g.Rand(nil, rand.New(rand.NewPCG(42, 0)))
	b := g.Rand(nil, rand.New(rand.NewPCG(42, 0)))
	assert.Equal(t, a, b)
}
