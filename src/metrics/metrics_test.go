package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderObserveFit(t *testing.T) {
	r := New()
	r.ObserveFit("converged", 12, 1, -321.5, 2*time.Second)
	r.ObserveFit("converged", 4, 0, -100, time.Second)
	r.ObserveFit("cancelled", 1, 0, -400, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.fits.WithLabelValues("converged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fits.WithLabelValues("cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decreases))
	assert.Equal(t, -400.0, testutil.ToFloat64(r.logLikelihood))
	assert.Equal(t, 1, testutil.CollectAndCount(r.iterations))
}

func TestRecorderObserveFailure(t *testing.T) {
	r := New()
	r.ObserveFailure("emission log-density")
	r.ObserveFailure("emission log-density")
	r.ObserveFailure("covariance update")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.failures.WithLabelValues("emission log-density")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.failures))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveFit("converged", 1, 0, 0, time.Second)
		r.ObserveFailure("x")
	})
}

func TestRegisterAndWrite(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New()
	require.NoError(t, r.Register(reg))
	assert.Error(t, r.Register(reg), "duplicate registration")

	r.ObserveFit("max-iterations-reached", 100, 0, -42, time.Second)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	out := buf.String()
	assert.Contains(t, out, `hmm_fits_total{state="max-iterations-reached"} 1`)
	assert.Contains(t, out, "hmm_fit_log_likelihood -42")
	assert.Contains(t, out, "hmm_fit_iterations_bucket")
}
