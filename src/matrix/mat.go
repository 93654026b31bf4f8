package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

/*
Function Structure
- Assertions
- Calculation
- Handle Subsequent Errors
*/

// LogSumExp returns log(sum(exp(x))) without overflowing. An empty slice or
// a slice of -Inf values returns -Inf.
func LogSumExp(x []float64) float64 {
	if len(x) == 0 {
		return math.Inf(-1)
	}
	mx := floats.Max(x)
	if math.IsInf(mx, -1) {
		return mx
	}
	return floats.LogSumExp(x)
}

// Softmax normalizes the log weights in x in place into probabilities and
// returns the log normalizer.
func Softmax(x []float64) float64 {
	z := LogSumExp(x)
	for i := range x {
		x[i] = math.Exp(x[i] - z)
	}
	return z
}

// NewSym builds a symmetric matrix from rows. The rows must form a square
// matrix whose entries agree with their transpose within tol, scaled by the
// largest absolute entry.
func NewSym(rows [][]float64, tol float64) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("matrix must not be empty")
	}

	scale := 1.0
	for i := range rows {
		if len(rows[i]) != n {
			return nil, fmt.Errorf("row %d has length %d, want %d", i, len(rows[i]), n)
		}
		for _, v := range rows[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("matrix contains non-finite value %v", v)
			}
			scale = math.Max(scale, math.Abs(v))
		}
	}

	data := make([]float64, n*n)
	for i := range n {
		for j := range n {
			if math.Abs(rows[i][j]-rows[j][i]) > tol*scale {
				return nil, fmt.Errorf("matrix is not symmetric at (%d,%d)", i, j)
			}
			/* Average the two halves so the stored matrix is exactly symmetric */
			data[i*n+j] = 0.5 * (rows[i][j] + rows[j][i])
		}
	}
	return mat.NewSymDense(n, data), nil
}

// Rows copies a matrix into a freshly allocated slice of rows.
func Rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range r {
		out[i] = make([]float64, c)
		for j := range c {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// IsPositiveDefinite reports whether the Cholesky factorization of s succeeds.
func IsPositiveDefinite(s mat.Symmetric) bool {
	var chol mat.Cholesky
	return chol.Factorize(s)
}

// Regularize adds eps*I to s until it is positive definite, multiplying eps
// by ten after each failed attempt. It returns the regularized copy and the
// ridge that was finally added, or an error after maxAttempts failures.
func Regularize(s mat.Symmetric, eps float64, maxAttempts int) (*mat.SymDense, float64, error) {
	if eps <= 0 {
		panic(fmt.Errorf("regularization must be positive, got %v", eps))
	}

	n := s.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(s)
	if IsPositiveDefinite(out) {
		return out, 0, nil
	}

	ridge := eps
	for range maxAttempts {
		out.CopySym(s)
		for i := range n {
			out.SetSym(i, i, out.At(i, i)+ridge)
		}
		if IsPositiveDefinite(out) {
			return out, ridge, nil
		}
		ridge *= 10
	}
	return nil, ridge, fmt.Errorf("matrix is not positive definite after adding %v*I", ridge/10)
}

// WeightedMoments accumulates the weighted first moment and outer-product
// second moment of x into sum and sumSq.
func WeightedMoments(sum *mat.VecDense, sumSq *mat.SymDense, x []float64, w float64) {
	n := sum.Len()
	if len(x) != n || sumSq.SymmetricDim() != n {
		panic(fmt.Errorf("dimension mismatch: x=%d sum=%d sumSq=%d", len(x), n, sumSq.SymmetricDim()))
	}
	if w == 0 {
		return
	}
	sum.AddScaledVec(sum, w, mat.NewVecDense(n, x))
	sumSq.SymRankOne(sumSq, w, mat.NewVecDense(n, x))
}

// Covariance turns weighted moment sums into a mean and a covariance,
// centered on that mean.
func Covariance(sum *mat.VecDense, sumSq *mat.SymDense, weight float64) (*mat.VecDense, *mat.SymDense) {
	if weight <= 0 {
		panic(fmt.Errorf("weight must be positive, got %v", weight))
	}
	n := sum.Len()

	mean := mat.NewVecDense(n, nil)
	mean.ScaleVec(1/weight, sum)

	cov := mat.NewSymDense(n, nil)
	cov.ScaleSym(1/weight, sumSq)
	cov.SymRankOne(cov, -1, mean)
	return mean, cov
}
