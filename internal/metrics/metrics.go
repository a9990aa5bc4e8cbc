// Package metrics exposes the harvester's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalFetches tracks the number of HTTP requests dispatched.
	TotalFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_fetches_total",
		Help: "The total number of HTTP requests sent.",
	})
	// TotalFetchErrors tracks the number of requests that resulted in an error.
	TotalFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_fetch_errors_total",
		Help: "The total number of failed HTTP requests.",
	})
	// TotalFetchRetries tracks transient failures that were retried.
	TotalFetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_fetch_retries_total",
		Help: "The total number of retried HTTP requests.",
	})
	// TotalEntitiesDiscovered tracks entities first seen on listing pages.
	TotalEntitiesDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_entities_discovered_total",
		Help: "The total number of distinct entities discovered.",
	})
	// TotalEntitiesDetailed tracks entities whose detail page was harvested.
	TotalEntitiesDetailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_entities_detailed_total",
		Help: "The total number of entities with harvested detail pages.",
	})
	// TotalAssociationsSkipped tracks listings excluded by the association filter.
	TotalAssociationsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_associations_skipped_total",
		Help: "The total number of listings excluded as industry associations.",
	})
	// TotalCheckpoints tracks checkpoint snapshots written to disk.
	TotalCheckpoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_checkpoints_total",
		Help: "The total number of checkpoint snapshots written.",
	})
)
