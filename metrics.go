package hsm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors shared by machines and instances.
// Labels carry the machine name only; instance ids would explode cardinality.
type Metrics struct {
	// DispatchTotal counts dispatched events by outcome.
	DispatchTotal *prometheus.CounterVec
	// TransitionsTotal counts dispatch entries taken, by origin.
	TransitionsTotal *prometheus.CounterVec
	// DeferredEvents tracks events currently held for replay.
	DeferredEvents *prometheus.GaugeVec
	// CompileDuration observes how long Compile takes.
	CompileDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. A nil reg registers with the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hsm_dispatch_total",
			Help: "Total number of dispatched events, by machine and outcome.",
		}, []string{"machine", "outcome"}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hsm_transitions_total",
			Help: "Total number of dispatch entries taken, by machine and origin.",
		}, []string{"machine", "origin"}),
		DeferredEvents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hsm_deferred_events",
			Help: "Current number of deferred events held for replay, by machine.",
		}, []string{"machine"}),
		CompileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hsm_compile_duration_seconds",
			Help:    "Time spent compiling machines into dispatch tables.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"machine"}),
	}
}
