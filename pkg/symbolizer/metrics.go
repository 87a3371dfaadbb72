package symbolizer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/dwarfreader/pkg/util"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	sourceDWARF    = "dwarf"
	sourceSymtab   = "symtab"
	sourceFallback = "fallback"
)

type metrics struct {
	registerer prometheus.Registerer

	binariesOpened *prometheus.CounterVec
	binarySize     prometheus.Histogram

	cacheOperations *prometheus.CounterVec

	profileSymbolization *prometheus.HistogramVec

	debugSymbolResolution       *prometheus.HistogramVec
	debugSymbolResolutionErrors *prometheus.CounterVec
	resolvedAddresses           *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		registerer: reg,
		binariesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dwarfreader_symbolizer_binaries_opened_total",
			Help: "Total number of binaries opened by status",
		}, []string{"status"}),
		binarySize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "dwarfreader_symbolizer_binary_size_bytes",
			Help: "Size of opened binaries",
			// 64KB to 128GB
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 12),
		}),
		cacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dwarfreader_symbolizer_cache_operations_total",
			Help: "Total number of cache operations by cache type, operation and status",
		}, []string{"cache_type", "operation", "status"}),
		profileSymbolization: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dwarfreader_profile_symbolization_duration_seconds",
			Help:    "Time spent performing profile symbolization by status",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		}, []string{"status"}),
		debugSymbolResolution: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dwarfreader_debug_symbol_resolution_duration_seconds",
			Help:    "Time spent resolving the addresses of one mapping by status",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		}, []string{"status"}),
		debugSymbolResolutionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dwarfreader_debug_symbol_resolution_errors_total",
			Help: "Total number of errors encountered during debug symbol resolution by error type",
		}, []string{"error_type"}),
		resolvedAddresses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dwarfreader_resolved_addresses_total",
			Help: "Total number of resolved addresses by the source that resolved them",
		}, []string{"source"}),
	}

	if reg != nil {
		m.register()
	}

	return m
}

func (m *metrics) register() {
	if m.registerer == nil {
		return
	}

	m.binariesOpened = util.RegisterOrGet(m.registerer, m.binariesOpened)
	m.binarySize = util.RegisterOrGet(m.registerer, m.binarySize)
	m.cacheOperations = util.RegisterOrGet(m.registerer, m.cacheOperations)
	m.profileSymbolization = util.RegisterOrGet(m.registerer, m.profileSymbolization)
	m.debugSymbolResolution = util.RegisterOrGet(m.registerer, m.debugSymbolResolution)
	m.debugSymbolResolutionErrors = util.RegisterOrGet(m.registerer, m.debugSymbolResolutionErrors)
	m.resolvedAddresses = util.RegisterOrGet(m.registerer, m.resolvedAddresses)
}
