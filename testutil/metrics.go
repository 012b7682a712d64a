/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInHistogram checks how many observations hist has, e.g. attempt durations.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	markHelper(t)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(hist))
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].GetMetric(), 1)
	require.Equal(t, wantSamplesCount, int(families[0].GetMetric()[0].GetHistogram().GetSampleCount()))
}

// RequireSamplesCountInCounter checks the value of counter, e.g. the number of succeeded units.
func RequireSamplesCountInCounter(t require.TestingT, counter prometheus.Counter, wantCount int) {
	markHelper(t)
	require.Equal(t, wantCount, int(promtestutil.ToFloat64(counter)))
}

// RequireGaugeValue checks the current value of gauge, e.g. the coordinator state.
func RequireGaugeValue(t require.TestingT, gauge prometheus.Gauge, want float64) {
	markHelper(t)
	require.Equal(t, want, promtestutil.ToFloat64(gauge))
}
