package hmm

import (
	"context"
	"sync"
)

// Model is a Gaussian HMM with a fixed number of states and emission
// dimensions. It starts without parameters; SetParameters or Fit provide
// them. A Model is safe for concurrent use.
type Model struct {
	mu         sync.RWMutex
	states     int
	dimensions int
	params     *Params

	engine *Engine
}

// New returns an unfitted model shell.
func New(states, dimensions int, opts ...EngineOption) (*Model, error) {
	if states <= 0 {
		return nil, invalidArgument("number of states must be positive, got %d", states)
	}
	if dimensions <= 0 {
		return nil, invalidArgument("number of dimensions must be positive, got %d", dimensions)
	}
	return &Model{
		states:     states,
		dimensions: dimensions,
		engine:     NewEngine(opts...),
	}, nil
}

func (m *Model) States() int {
	return m.states
}

func (m *Model) Dimensions() int {
	return m.dimensions
}

// SetParameters validates and installs new parameters. On error the previous
// parameters are kept.
func (m *Model) SetParameters(pi []float64, a [][]float64, mu [][]float64, sigma [][][]float64) error {
	p, err := NewParams(pi, a, mu, sigma)
	if err != nil {
		return err
	}
	if p.States() != m.states || p.Dimensions() != m.dimensions {
		return invalidParameter("parameters have %d states and %d dimensions, model has %d and %d",
			p.States(), p.Dimensions(), m.states, m.dimensions)
	}

	m.mu.Lock()
	m.params = p
	m.mu.Unlock()
	return nil
}

// Params returns the current parameters, or nil if none are set.
func (m *Model) Params() *Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// GetParameters returns a copy of the current parameters.
func (m *Model) GetParameters() (ParameterSet, error) {
	p, err := m.current()
	if err != nil {
		return ParameterSet{}, err
	}
	return p.Set(), nil
}

func (m *Model) current() (*Params, error) {
	p := m.Params()
	if p == nil {
		return nil, invalidArgument("model parameters are not set")
	}
	return p, nil
}

// Sample draws observations sequences of length time. States has shape
// [observations,time] and Emissions [observations,time,dimensions].
func (m *Model) Sample(observations, time int, seed int64) (*Sample, error) {
	p, err := m.current()
	if err != nil {
		return nil, err
	}
	return m.engine.Sample(p, observations, time, seed)
}

// Fit estimates parameters from data with Baum-Welch. It starts from the
// current parameters when they are set and from a seeded k-means++
// initialization otherwise. The fitted parameters replace the model's
// parameters unless the fit fails or is cancelled.
func (m *Model) Fit(ctx context.Context, data [][][]float64, opts ...FitOption) (*FitResult, error) {
	batch := Batch(data)
	if _, _, err := batch.check(m.dimensions); err != nil {
		return nil, err
	}

	init := m.Params()
	if init == nil {
		var err error
		init, err = m.engine.Initialize(batch, m.states, opts...)
		if err != nil {
			return nil, err
		}
	}

	res, err := m.engine.Fit(ctx, init, batch, opts...)
	if err != nil {
		return res, err
	}

	m.mu.Lock()
	m.params = res.Params
	m.mu.Unlock()
	return res, nil
}

// Inference returns the most probable state path per sequence, shape
// [observations,time].
func (m *Model) Inference(ctx context.Context, data [][][]float64) ([][]int, error) {
	p, err := m.current()
	if err != nil {
		return nil, err
	}
	return m.engine.Decode(ctx, p, Batch(data))
}

// LogLikelihood returns the log-likelihood of each sequence, shape
// [observations].
func (m *Model) LogLikelihood(ctx context.Context, data [][][]float64) ([]float64, error) {
	p, err := m.current()
	if err != nil {
		return nil, err
	}
	return m.engine.LogLikelihood(ctx, p, Batch(data))
}
