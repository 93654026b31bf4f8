package hmm

import (
	"context"
	"math"

	"github.com/LucaChot/ghmm/src/matrix"
)

// Posterior holds the forward-backward tables of one sequence. LogAlpha,
// LogBeta and Gamma are [T][S]; Xi is [T-1][S][S].
type Posterior struct {
	LogAlpha      [][]float64
	LogBeta       [][]float64
	Gamma         [][]float64
	Xi            [][][]float64
	LogLikelihood float64
}

// lattice carries everything the recursions need for one sequence. Tables
// are flat, indexed [t*S+s] and [t*S*S+i*S+j].
type lattice struct {
	s, t  int
	logPi []float64
	logA  []float64
	logB  []float64
	lse   func([]float64) float64
}

type tables struct {
	logAlpha []float64
	logBeta  []float64
	gamma    []float64
	xi       []float64
	ll       float64
}

// forward fills log alpha and returns the sequence log-likelihood.
func (l *lattice) forward() ([]float64, float64) {
	s, t := l.s, l.t
	alpha := make([]float64, t*s)
	terms := make([]float64, s)

	for j := range s {
		alpha[j] = l.logPi[j] + l.logB[j]
	}
	for step := 1; step < t; step++ {
		prev := alpha[(step-1)*s : step*s]
		for j := range s {
			for i := range s {
				terms[i] = prev[i] + l.logA[i*s+j]
			}
			alpha[step*s+j] = l.logB[step*s+j] + l.lse(terms)
		}
	}
	return alpha, l.lse(alpha[(t-1)*s:])
}

// backward fills log beta, with log beta[T-1] = 0.
func (l *lattice) backward() []float64 {
	s, t := l.s, l.t
	beta := make([]float64, t*s)
	terms := make([]float64, s)

	for step := t - 2; step >= 0; step-- {
		next := beta[(step+1)*s : (step+2)*s]
		emit := l.logB[(step+1)*s : (step+2)*s]
		for i := range s {
			for j := range s {
				terms[j] = l.logA[i*s+j] + emit[j] + next[j]
			}
			beta[step*s+i] = l.lse(terms)
		}
	}
	return beta
}

// posteriors runs both passes and derives gamma and xi.
func (l *lattice) posteriors() *tables {
	s, t := l.s, l.t
	alpha, ll := l.forward()
	beta := l.backward()

	gamma := make([]float64, t*s)
	for step := range t {
		row := gamma[step*s : (step+1)*s]
		for j := range s {
			row[j] = alpha[step*s+j] + beta[step*s+j]
		}
		softmax(row, l.lse)
	}

	var xi []float64
	if t > 1 {
		xi = make([]float64, (t-1)*s*s)
	}
	for step := 0; step < t-1; step++ {
		block := xi[step*s*s : (step+1)*s*s]
		for i := range s {
			for j := range s {
				block[i*s+j] = alpha[step*s+i] + l.logA[i*s+j] +
					l.logB[(step+1)*s+j] + beta[(step+1)*s+j]
			}
		}
		softmax(block, l.lse)
	}

	return &tables{logAlpha: alpha, logBeta: beta, gamma: gamma, xi: xi, ll: ll}
}

func softmax(x []float64, lse func([]float64) float64) {
	z := lse(x)
	for i := range x {
		x[i] = math.Exp(x[i] - z)
	}
}

// prepared caches per-call quantities derived from the parameters.
type prepared struct {
	s, d  int
	logPi []float64
	logA  []float64
	dens  []matrix.Density
}

func (e *Engine) prepare(p *Params) (*prepared, error) {
	dens, err := e.densities(p)
	if err != nil {
		return nil, err
	}
	return &prepared{
		s:     p.States(),
		d:     p.Dimensions(),
		logPi: p.logPi(),
		logA:  p.logA(),
		dens:  dens,
	}, nil
}

func (e *Engine) newLattice(pp *prepared, seq [][]float64, idx int) (*lattice, error) {
	logB, err := logEmissions(pp.dens, seq, idx)
	if err != nil {
		return nil, err
	}
	return &lattice{
		s:     pp.s,
		t:     len(seq),
		logPi: pp.logPi,
		logA:  pp.logA,
		logB:  logB,
		lse:   e.backend.LogSumExp,
	}, nil
}

func checkLogLikelihood(ll float64, idx int) error {
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return &NumericalInstabilityError{
			Sequence: idx, Time: -1, State: -1, Value: ll, Op: "sequence log-likelihood",
		}
	}
	return nil
}

// ForwardBackward returns the posterior tables of every sequence in batch.
func (e *Engine) ForwardBackward(ctx context.Context, p *Params, batch Batch) ([]*Posterior, error) {
	n, _, err := batch.check(p.Dimensions())
	if err != nil {
		return nil, err
	}
	pp, err := e.prepare(p)
	if err != nil {
		return nil, err
	}

	out := make([]*Posterior, n)
	err = e.forEachSequence(ctx, n, func(i int) error {
		l, err := e.newLattice(pp, batch[i], i)
		if err != nil {
			return err
		}
		tb := l.posteriors()
		if err := checkLogLikelihood(tb.ll, i); err != nil {
			return err
		}
		out[i] = tb.nest(l.s, l.t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LogLikelihood returns log p(sequence) for every sequence, shape [N].
func (e *Engine) LogLikelihood(ctx context.Context, p *Params, batch Batch) ([]float64, error) {
	n, _, err := batch.check(p.Dimensions())
	if err != nil {
		return nil, err
	}
	pp, err := e.prepare(p)
	if err != nil {
		return nil, err
	}

	out := make([]float64, n)
	err = e.forEachSequence(ctx, n, func(i int) error {
		l, err := e.newLattice(pp, batch[i], i)
		if err != nil {
			return err
		}
		_, ll := l.forward()
		if err := checkLogLikelihood(ll, i); err != nil {
			return err
		}
		out[i] = ll
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tb *tables) nest(s, t int) *Posterior {
	post := &Posterior{
		LogAlpha:      reshape(tb.logAlpha, t, s),
		LogBeta:       reshape(tb.logBeta, t, s),
		Gamma:         reshape(tb.gamma, t, s),
		Xi:            make([][][]float64, t-1),
		LogLikelihood: tb.ll,
	}
	for step := range post.Xi {
		post.Xi[step] = reshape(tb.xi[step*s*s:(step+1)*s*s], s, s)
	}
	return post
}

func reshape(flat []float64, r, c int) [][]float64 {
	out := make([][]float64, r)
	for i := range r {
		out[i] = flat[i*c : (i+1)*c : (i+1)*c]
	}
	return out
}
