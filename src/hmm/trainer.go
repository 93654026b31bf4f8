package hmm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// FitState is the Baum-Welch state machine:
// Initializing -> Iterating -> {Converged | MaxIterationsReached | Cancelled}.
type FitState int

const (
	Initializing FitState = iota
	Iterating
	Converged
	MaxIterationsReached
	Cancelled
)

func (s FitState) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max-iterations-reached"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("FitState(%d)", int(s))
	}
}

// FitResult is produced once per Fit call and not modified afterwards.
type FitResult struct {
	Params    *Params
	Converged bool
	State     FitState
	// Iterations counts completed M-steps.
	Iterations int
	// LogLikelihood is the last evaluated total log-likelihood, -Inf if
	// none was evaluated.
	LogLikelihood float64
	// Trajectory holds the total log-likelihood evaluated at the start of
	// every iteration. Unless the fit was cancelled, the last entry is the
	// log-likelihood of Params.
	Trajectory []float64
	// Decreases counts iterations where the log-likelihood fell by more
	// than rounding noise.
	Decreases int
	RunID     string
}

// AIC is the Akaike information criterion of the fitted model.
func (r *FitResult) AIC() float64 {
	return 2*float64(r.Params.NumFreeParameters()) - 2*r.LogLikelihood
}

// BIC is the Bayesian information criterion for numObservations emitted
// vectors.
func (r *FitResult) BIC(numObservations int) float64 {
	return float64(r.Params.NumFreeParameters())*math.Log(float64(numObservations)) - 2*r.LogLikelihood
}

type fitOptions struct {
	maxIterations          int
	tolerance              float64
	seed                   int64
	regularization         float64
	regularizationAttempts int
	initIterations         int
}

// FitOption configures Fit and Initialize
type FitOption func(*fitOptions)

func WithMaxIterations(n int) FitOption {
	return func(o *fitOptions) {
		o.maxIterations = n
	}
}

// WithTolerance sets the absolute change in total log-likelihood below
// which the fit is considered converged.
func WithTolerance(tol float64) FitOption {
	return func(o *fitOptions) {
		o.tolerance = tol
	}
}

func WithSeed(seed int64) FitOption {
	return func(o *fitOptions) {
		o.seed = seed
	}
}

// WithRegularization sets the first ridge added to a covariance that is not
// positive definite.
func WithRegularization(eps float64) FitOption {
	return func(o *fitOptions) {
		o.regularization = eps
	}
}

// WithInitIterations bounds the Lloyd rounds used by Initialize.
func WithInitIterations(n int) FitOption {
	return func(o *fitOptions) {
		o.initIterations = n
	}
}

func defaultFitOptions() fitOptions {
	return fitOptions{
		maxIterations:          100,
		tolerance:              1e-3,
		seed:                   0,
		regularization:         1e-6,
		regularizationAttempts: 12,
		initIterations:         10,
	}
}

func (o fitOptions) check() error {
	if o.maxIterations < 0 {
		return invalidArgument("max iterations must not be negative, got %d", o.maxIterations)
	}
	if o.tolerance < 0 || math.IsNaN(o.tolerance) {
		return invalidArgument("tolerance must not be negative, got %v", o.tolerance)
	}
	if !(o.regularization > 0) {
		return invalidArgument("regularization must be positive, got %v", o.regularization)
	}
	if o.initIterations < 0 {
		return invalidArgument("init iterations must not be negative, got %d", o.initIterations)
	}
	return nil
}

// decreaseSlack is the drop in log-likelihood still attributed to rounding.
func decreaseSlack(ll float64) float64 {
	return 1e-8 * math.Max(1, math.Abs(ll))
}

// Fit runs Baum-Welch from init until the total log-likelihood changes by
// less than the tolerance or the iteration cap is hit. init is not modified.
//
// Cancellation of ctx is only observed between iterations. In that case the
// parameters of the last completed iteration are returned with
// Converged=false together with the context's error. A numerical failure
// aborts the fit and returns no result.
func (e *Engine) Fit(ctx context.Context, init *Params, batch Batch, opts ...FitOption) (*FitResult, error) {
	options := defaultFitOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if err := options.check(); err != nil {
		return nil, err
	}
	if init == nil {
		return nil, invalidArgument("initial parameters must not be nil")
	}
	n, _, err := batch.check(init.Dimensions())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &FitResult{
		State:         Initializing,
		LogLikelihood: math.Inf(-1),
		RunID:         uuid.NewString(),
	}
	logger := e.logger.WithField("run", res.RunID)
	logger.WithFields(log.Fields{
		"sequences":     n,
		"states":        init.States(),
		"maxIterations": options.maxIterations,
		"tolerance":     options.tolerance,
	}).Info("starting baum-welch")

	/* Iterations run to completion even if ctx is cancelled mid-way */
	work := context.WithoutCancel(ctx)

	params := init.Clone()
	prevLL := math.Inf(-1)
	res.State = Iterating

	for it := 0; ; it++ {
		if err := ctx.Err(); err != nil {
			res.State = Cancelled
			res.Params = params
			res.Iterations = it
			logger.WithField("iteration", it).Warn("baum-welch cancelled")
			e.metrics.ObserveFit(res.State.String(), it, res.Decreases, res.LogLikelihood, time.Since(start))
			return res, err
		}

		stats, err := e.expect(work, params, batch, n)
		if err != nil {
			return nil, e.abort(logger, it, err)
		}
		ll := stats.ll
		res.Trajectory = append(res.Trajectory, ll)
		res.LogLikelihood = ll
		logger.WithFields(log.Fields{
			"iteration":     it,
			"logLikelihood": ll,
		}).Debug("expectation step")

		if it > 0 {
			delta := ll - prevLL
			if delta < -decreaseSlack(prevLL) {
				res.Decreases++
				logger.WithFields(log.Fields{
					"iteration": it,
					"decrease":  -delta,
				}).Warn("log-likelihood decreased")
			}
			if math.Abs(delta) < options.tolerance {
				res.State = Converged
				res.Converged = true
				res.Iterations = it
				break
			}
		}
		if it >= options.maxIterations {
			res.State = MaxIterationsReached
			res.Iterations = it
			break
		}

		next, err := stats.maximize(params, options.regularization, options.regularizationAttempts)
		if err != nil {
			return nil, e.abort(logger, it, err)
		}
		params = next
		prevLL = ll
	}

	res.Params = params
	e.metrics.ObserveFit(res.State.String(), res.Iterations, res.Decreases, res.LogLikelihood, time.Since(start))
	logger.WithFields(log.Fields{
		"state":         res.State,
		"iterations":    res.Iterations,
		"logLikelihood": res.LogLikelihood,
	}).Info("finished baum-welch")
	return res, nil
}

func (e *Engine) abort(logger *log.Entry, it int, err error) error {
	var nie *NumericalInstabilityError
	if errors.As(err, &nie) {
		e.metrics.ObserveFailure(nie.Op)
	}
	logger.WithError(err).Error("baum-welch aborted")
	return fmt.Errorf("iteration %d: %w", it, err)
}

// expect runs the E-step over every sequence and merges the per-sequence
// statistics in sequence order, so the result does not depend on worker
// scheduling.
func (e *Engine) expect(ctx context.Context, p *Params, batch Batch, n int) (*sufficientStats, error) {
	pp, err := e.prepare(p)
	if err != nil {
		return nil, err
	}

	parts := make([]*sufficientStats, n)
	err = e.forEachSequence(ctx, n, func(i int) error {
		l, err := e.newLattice(pp, batch[i], i)
		if err != nil {
			return err
		}
		tb := l.posteriors()
		if err := checkLogLikelihood(tb.ll, i); err != nil {
			return err
		}
		st := newSufficientStats(pp.s, pp.d)
		st.add(tb, batch[i])
		parts[i] = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := newSufficientStats(pp.s, pp.d)
	for _, st := range parts {
		total.merge(st)
	}
	return total, nil
}
