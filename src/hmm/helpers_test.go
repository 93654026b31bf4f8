package hmm

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// exampleSet is the three state, two dimensional model used throughout the
// demo program.
func exampleSet() ParameterSet {
	return ParameterSet{
		Pi: []float64{0.15, 0.2, 0.65},
		A: [][]float64{
			{0.55, 0.15, 0.3},
			{0.45, 0.45, 0.1},
			{0.15, 0.2, 0.65},
		},
		Mu: [][]float64{
			{-7.0, -8.0},
			{-1.5, 3.7},
			{-1.7, 1.2},
		},
		Sigma: [][][]float64{
			{{0.12, -0.01}, {-0.01, 0.5}},
			{{0.21, 0.05}, {0.05, 0.03}},
			{{0.37, 0.35}, {0.35, 0.44}},
		},
	}
}

func exampleParams(t *testing.T) *Params {
	t.Helper()
	p, err := FromSet(exampleSet())
	require.NoError(t, err)
	return p
}

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	l.SetLevel(log.DebugLevel)
	return log.NewEntry(l)
}

func testEngine(opts ...EngineOption) *Engine {
	return NewEngine(append([]EngineOption{WithLogger(quietLogger())}, opts...)...)
}

func shape3(b Batch) []int {
	if len(b) == 0 || len(b[0]) == 0 {
		return []int{len(b)}
	}
	return []int{len(b), len(b[0]), len(b[0][0])}
}

func shape2[T any](x [][]T) []int {
	if len(x) == 0 {
		return []int{0}
	}
	return []int{len(x), len(x[0])}
}
