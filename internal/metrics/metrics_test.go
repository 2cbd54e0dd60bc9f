package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"mde/internal/metrics"
)

func TestNewNilRegistryIsNoOp(t *testing.T) {
	m := metrics.New(nil)
	require.Nil(t, m.CacheHits)
	require.NotPanics(t, func() {
		metrics.Inc(m.CacheHits)
		metrics.Inc(nil)
	})
}

func TestNewWithRegistryCollectsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	require.NotNil(t, m.WALAppends)

	metrics.Inc(m.WALAppends)
	metrics.Inc(m.WALAppends)

	got, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, got)

	var found bool
	for _, mf := range got {
		for _, metric := range mf.GetMetric() {
			if metric.GetCounter().GetValue() == 2 {
				found = true
			}
		}
	}
	require.True(t, found, "expected a counter with value 2 among gathered metrics")
}
