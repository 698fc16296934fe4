package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "faculty_portal"

var (
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_opened_total",
		Help:      "Attendance sessions opened against the backend.",
	})

	SessionOpenFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_open_failures_total",
		Help:      "Session start calls that were rejected or unreachable.",
	})

	DraftsRestored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drafts_restored_total",
		Help:      "Sessions whose working set was overlaid from a cached draft.",
	})

	DraftsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drafts_discarded_total",
		Help:      "Cached drafts ignored at load time, by reason.",
	}, []string{"reason"})

	DraftSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "draft_save_failures_total",
		Help:      "Draft writes that failed and were left for a later flush.",
	})

	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "attendance_mutations_total",
		Help:      "Accepted attendance edits, by kind.",
	}, []string{"kind"})

	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_total",
		Help:      "Commit attempts, by outcome.",
	}, []string{"outcome"})

	CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "commit_duration_seconds",
		Help:      "Latency of finalize calls.",
		Buckets:   prometheus.DefBuckets,
	})

	BackendRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Latency of calls to the attendance backend, by endpoint and result.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "result"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Sessions currently held open by the portal.",
	})
)
