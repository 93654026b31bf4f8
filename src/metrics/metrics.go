package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "hmm"

// Recorder collects Baum-Welch fit metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	fits          *prometheus.CounterVec
	iterations    prometheus.Histogram
	duration      prometheus.Histogram
	decreases     prometheus.Counter
	failures      *prometheus.CounterVec
	logLikelihood prometheus.Gauge
}

func New() *Recorder {
	return &Recorder{
		fits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fits_total",
				Help:      "Finished fits by final state",
			},
			[]string{"state"},
		),
		iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fit_iterations",
				Help:      "Completed Baum-Welch iterations per fit",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fit_duration_seconds",
				Help:      "Wall time of a fit",
				Buckets:   prometheus.DefBuckets,
			},
		),
		decreases: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "log_likelihood_decreases_total",
				Help:      "Iterations whose log-likelihood fell by more than rounding noise",
			},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "numerical_failures_total",
				Help:      "Computations aborted by a non-finite value, by operation",
			},
			[]string{"op"},
		),
		logLikelihood: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fit_log_likelihood",
				Help:      "Total log-likelihood at the end of the last fit",
			},
		),
	}
}

// Register adds every collector to reg.
func (r *Recorder) Register(reg prometheus.Registerer) error {
	for _, c := range r.collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{r.fits, r.iterations, r.duration, r.decreases, r.failures, r.logLikelihood}
}

// ObserveFit records a fit that returned a result, cancelled ones included.
func (r *Recorder) ObserveFit(state string, iterations, decreases int, logLikelihood float64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.fits.WithLabelValues(state).Inc()
	r.iterations.Observe(float64(iterations))
	r.duration.Observe(elapsed.Seconds())
	r.decreases.Add(float64(decreases))
	r.logLikelihood.Set(logLikelihood)
}

// ObserveFailure records a computation aborted during op.
func (r *Recorder) ObserveFailure(op string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(op).Inc()
}

// WriteText gathers g and writes it in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
