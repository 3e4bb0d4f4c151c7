package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NodesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowdag_nodes_added_total",
		Help: "Total number of nodes and sub-nodes inserted into graphs.",
	})

	EdgesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowdag_edges_added_total",
		Help: "Total number of edges committed to graphs.",
	})

	EdgesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdag_edges_rejected_total",
		Help: "Total number of rejected edge insertions, labelled by reason.",
	}, []string{"reason"})

	GroupsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowdag_groups_added_total",
		Help: "Total number of groups added to group condensed nodes.",
	})

	WorkflowBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdag_workflow_builds_total",
		Help: "Total number of workflow graph builds, labelled by status.",
	}, []string{"status"})

	DispatchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdag_dispatch_runs_total",
		Help: "Total number of dispatch runs, labelled by status.",
	}, []string{"status"})

	TaskDispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowdag_task_dispatch_duration_seconds",
		Help:    "Latency of a single leaf task callback in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	WorkerQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowdag_worker_queue_utilization_ratio",
		Help: "Current dispatch worker queue utilization (0–1).",
	})
)
