package util

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newCounter() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
}

func TestRegisterOrGet(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := RegisterOrGet(reg, newCounter())
	second := RegisterOrGet(reg, newCounter())
	require.Same(t, first, second)

	unregistered := newCounter()
	require.Same(t, unregistered, RegisterOrGet(nil, unregistered))

	// Same name, different help: not the same collector.
	require.Panics(t, func() {
		RegisterOrGet(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "other"}))
	})
}
