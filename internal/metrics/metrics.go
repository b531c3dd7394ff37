// Package metrics registers the Prometheus collectors exposed by the ops
// server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts processed jobs by terminal outcome
	// (delivered, failed, rejected_size).
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcore_jobs_total",
		Help: "Processed download jobs by outcome.",
	}, []string{"outcome"})

	// CacheHits counts content cache lookups answered from cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botcore_cache_hits_total",
		Help: "Content cache hits.",
	})

	// CacheMisses counts content cache lookups that required a fetch.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botcore_cache_misses_total",
		Help: "Content cache misses.",
	})

	// QueueDepth tracks the number of queued jobs.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botcore_queue_depth",
		Help: "Jobs currently waiting in the download queue.",
	})

	// ActivePollers tracks running subscription poller tasks.
	ActivePollers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botcore_active_pollers",
		Help: "Subscription poller tasks currently running.",
	})

	// DeliveredBytes accumulates the size of successfully delivered artifacts.
	DeliveredBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botcore_delivered_bytes_total",
		Help: "Total bytes of artifacts handed to the delivery transport.",
	})
)
