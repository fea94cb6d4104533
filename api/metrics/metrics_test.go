package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	c := EntitlementWritesTotal.WithLabelValues("grant", OutcomeOK)
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestObserverGauge(t *testing.T) {
	before := testutil.ToFloat64(ObserverSubscriptions)
	ObserverSubscriptions.Inc()
	ObserverSubscriptions.Dec()
	assert.Equal(t, before, testutil.ToFloat64(ObserverSubscriptions))
}

func TestRegisteredOnDefaultRegistry(t *testing.T) {
	ReconcileRuns.WithLabelValues(OutcomeOK).Inc()
	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "offboardpro_billing_reconcile_runs_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}
