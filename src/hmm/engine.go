package hmm

import (
	"context"
	"math"
	"runtime"

	"github.com/LucaChot/ghmm/src/matrix"
	"github.com/LucaChot/ghmm/src/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Engine runs sampling, inference and fitting for Gaussian HMMs. It holds no
// model state; every call receives its parameters explicitly.
type Engine struct {
	backend matrix.Backend
	workers int
	logger  *log.Entry
	metrics *metrics.Recorder
}

type engineOptions struct {
	backend matrix.Backend
	workers int
	logger  *log.Entry
	metrics *metrics.Recorder
}

// EngineOption configures an Engine
type EngineOption func(*engineOptions)

// WithBackend replaces the numeric backend.
func WithBackend(b matrix.Backend) EngineOption {
	return func(o *engineOptions) {
		o.backend = b
	}
}

// WithWorkers bounds the number of sequences processed concurrently.
// Values below one mean one worker per CPU.
func WithWorkers(n int) EngineOption {
	return func(o *engineOptions) {
		o.workers = n
	}
}

func WithLogger(l *log.Entry) EngineOption {
	return func(o *engineOptions) {
		o.logger = l
	}
}

// WithMetrics records fit outcomes in r.
func WithMetrics(r *metrics.Recorder) EngineOption {
	return func(o *engineOptions) {
		o.metrics = r
	}
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		backend: matrix.Gonum{},
		workers: runtime.GOMAXPROCS(0),
		logger:  log.StandardLogger().WithField("component", "hmm"),
	}
}

// NewEngine returns an Engine
func NewEngine(opts ...EngineOption) *Engine {
	options := defaultEngineOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.workers < 1 {
		options.workers = runtime.GOMAXPROCS(0)
	}
	if options.backend == nil {
		options.backend = matrix.Gonum{}
	}
	if options.logger == nil {
		options.logger = log.StandardLogger().WithField("component", "hmm")
	}

	return &Engine{
		backend: options.backend,
		workers: options.workers,
		logger:  options.logger,
		metrics: options.metrics,
	}
}

// densities builds one emission density per state.
func (e *Engine) densities(p *Params) ([]matrix.Density, error) {
	out := make([]matrix.Density, p.States())
	for s := range out {
		g, err := e.backend.Gaussian(p.mu[s], p.sigma[s])
		if err != nil {
			return nil, &NumericalInstabilityError{
				Sequence: -1, Time: -1, State: s,
				Value: math.NaN(), Op: "covariance factorization", Cause: err,
			}
		}
		out[s] = g
	}
	return out, nil
}

// logEmissions returns log N(obs[t]; mu_s, Sigma_s) flattened as [t*S+s].
func logEmissions(dens []matrix.Density, seq [][]float64, seqIdx int) ([]float64, error) {
	ns := len(dens)
	out := make([]float64, len(seq)*ns)
	for t, x := range seq {
		for s, g := range dens {
			v := g.LogProb(x)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &NumericalInstabilityError{
					Sequence: seqIdx, Time: t, State: s, Value: v, Op: "emission log-density",
				}
			}
			out[t*ns+s] = v
		}
	}
	return out, nil
}

// forEachSequence runs fn for every sequence index on the worker pool. Each
// call must only write to slots owned by its index. The first error cancels
// the remaining work.
func (e *Engine) forEachSequence(ctx context.Context, n int, fn func(i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}
