package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle("ok", 2*time.Second)
	m.ObserveCycle("fetch_error", time.Second)
	m.AddProcessed(3)
	m.IncDetected("price_drop")
	m.IncDelivered("price_drop")
	m.IncSuppressed("price_drop", ReasonCooldown)
	m.IncSubscriptionSend("ok")
	m.IncProductError()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.processed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suppressed.WithLabelValues("price_drop", "cooldown")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "drivewatch_cycle_duration_seconds")
	assert.Contains(t, names, "drivewatch_subscription_sends_total")
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = Noop{}
	assert.NotPanics(t, func() {
		r.ObserveCycle("ok", time.Second)
		r.IncSuppressed("price_spike", ReasonDisabled)
	})
}
