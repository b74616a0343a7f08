package compiler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	compiled       *prometheus.CounterVec
	notImplemented *prometheus.CounterVec
	states         prometheus.Counter
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	factory := promauto.With(registerer)
	return &metrics{
		compiled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruleflow_statements_compiled_total",
				Help: "Number of statements and declarations compiled.",
			},
			[]string{"kind"},
		),
		notImplemented: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ruleflow_not_implemented_total",
				Help: "Number of statements rejected for an unsupported construct.",
			},
			[]string{"construct"},
		),
		states: factory.NewCounter(prometheus.CounterOpts{
			Name: "ruleflow_state_slots_allocated_total",
			Help: "Number of persistent state slots allocated.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ruleflow_cache_hits_total",
			Help: "Number of hits for a compiled program lookup.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "ruleflow_cache_misses_total",
			Help: "Number of misses for a compiled program lookup.",
		}),
	}
}
