// Package observability centralizes the Prometheus metrics exported by both
// the load balancer and the host-manager processes.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// -- Queue / Scheduler (C3, C4) --

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lb_queue_depth",
		Help: "Current number of requests in the priority queue",
	})

	QueueOldestAgeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lb_queue_oldest_age_seconds",
		Help: "Age in seconds of the oldest request currently queued",
	})

	SchedulerDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lb_scheduler_decisions_total",
		Help: "Scheduling decisions made, by outcome",
	}, []string{"decision"}) // dispatch, no_healthy_nodes

	ForwardDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lb_forward_duration_seconds",
		Help:    "Time spent forwarding a request to a backend node",
		Buckets: prometheus.DefBuckets,
	}, []string{"node_id", "outcome"})

	AdmissionDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lb_admission_delay_seconds",
		Help:    "Injected admission-control delay before forwarding",
		Buckets: prometheus.DefBuckets,
	})

	// -- Node health (C1, C2) --

	NodeHealthTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lb_node_health_transitions_total",
		Help: "Node health state transitions observed by the probe",
	}, []string{"node_id", "transition"}) // recovered, failed

	NodeHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lb_node_healthy",
		Help: "1 if the node is currently healthy, 0 otherwise",
	}, []string{"node_id"})

	NodeLoad = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lb_node_in_flight",
		Help: "Current in-flight request count for a node",
	}, []string{"node_id"})

	// -- Public API (C6) --

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lb_api_requests_total",
		Help: "Public API requests received, by route and status",
	}, []string{"route", "status"})

	APIRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lb_api_rate_limited_total",
		Help: "Public API requests rejected by the admission rate limiter",
	}, []string{"route"})

	// -- Scaling sensor (C7) --

	ScaleIntentsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lb_scale_intents_published_total",
		Help: "Scale intents published to the bus, by direction",
	}, []string{"direction"})

	ScaleIntentsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lb_scale_intents_dropped_total",
		Help: "Scale intents dropped because the bus was unavailable",
	}, []string{"direction"})

	// -- Host manager reconciler (C8, C9) --

	ReconcilerDesiredCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hostmanager_desired_containers",
		Help: "Number of containers currently in the desired set",
	})

	ReconcilerContainerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hostmanager_container_state",
		Help: "1 if the container is currently in the labeled lifecycle state",
	}, []string{"container", "state"})

	ReconcilerRuntimeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostmanager_runtime_failures_total",
		Help: "Container runtime operation failures, by operation",
	}, []string{"operation"})

	ReconcilerEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostmanager_events_published_total",
		Help: "Scale events published after a successful lifecycle transition",
	}, []string{"action"})

	ReconcilerIntentsIgnoredDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostmanager_intents_ignored_duplicate_total",
		Help: "Scale intents ignored because their sequence id was already seen",
	})
)
