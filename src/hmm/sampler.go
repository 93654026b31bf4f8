package hmm

import (
	"math/rand/v2"

	"github.com/LucaChot/ghmm/src/alias"
	log "github.com/sirupsen/logrus"
)

// NewRand returns the deterministic generator used for a seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// Sample draws n sequences of length t from p using the generator for seed.
func (e *Engine) Sample(p *Params, n, t int, seed int64) (*Sample, error) {
	return e.SampleWith(p, n, t, NewRand(seed))
}

// SampleWith draws n sequences of length t from p using rng. Draws happen in
// a fixed order: sequences outermost, then time, and at each step the state
// before the emission. The same generator state therefore always yields the
// same sample.
func (e *Engine) SampleWith(p *Params, n, t int, rng *rand.Rand) (*Sample, error) {
	if n <= 0 {
		return nil, invalidArgument("number of sequences must be positive, got %d", n)
	}
	if t <= 0 {
		return nil, invalidArgument("sequence length must be positive, got %d", t)
	}
	if rng == nil {
		return nil, invalidArgument("random generator must not be nil")
	}

	dens, err := e.densities(p)
	if err != nil {
		return nil, err
	}

	initial, err := alias.New(p.pi)
	if err != nil {
		return nil, invalidParameter("pi: %v", err)
	}
	rows := make([]*alias.AliasTable, p.States())
	for s := range rows {
		rows[s], err = alias.New(p.a.RawRowView(s))
		if err != nil {
			return nil, invalidParameter("A row %d: %v", s, err)
		}
	}

	d := p.Dimensions()
	out := &Sample{
		States:    make([][]int, n),
		Emissions: make(Batch, n),
	}
	for i := range n {
		states := make([]int, t)
		emissions := make([][]float64, t)

		state := initial.Sample(rng)
		for step := range t {
			if step > 0 {
				state = rows[state].Sample(rng)
			}
			states[step] = state
			emissions[step] = dens[state].Rand(make([]float64, d), rng)
		}

		out.States[i] = states
		out.Emissions[i] = emissions
	}

	e.logger.WithFields(log.Fields{
		"sequences": n,
		"length":    t,
	}).Debug("sampled batch")

	return out, nil
}
