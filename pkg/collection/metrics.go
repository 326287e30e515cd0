package collection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level collectors; registered once with the default registry.
var (
	cacheFills = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scenegraph",
		Subsystem: "collection",
		Name:      "cache_fills_total",
		Help:      "Flattened object caches computed from membership lists",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scenegraph",
		Subsystem: "collection",
		Name:      "cache_hits_total",
		Help:      "Flattened object cache reads served without a fill",
	})

	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scenegraph",
		Subsystem: "collection",
		Name:      "cache_invalidations_total",
		Help:      "Collections whose flattened cache was dropped",
	})

	mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenegraph",
		Subsystem: "collection",
		Name:      "mutations_total",
		Help:      "Structural mutations by operation and outcome",
	}, []string{"op", "result"})
)

func observeMutation(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	mutations.WithLabelValues(op, result).Inc()
}
