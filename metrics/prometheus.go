package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsTracked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mytypist_interaction_events_total",
			Help: "Interaction events submitted, by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	SessionQuality = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mytypist_session_quality_score",
			Help:    "Session quality score after each handled interaction",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	CacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mytypist_cache_results_total",
			Help: "Cache lookups by cache and result (hit, miss, error)",
		},
		[]string{"cache", "result"},
	)

	ThreatsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mytypist_threats_detected_total",
			Help: "Threat pattern matches by pattern type and severity",
		},
		[]string{"pattern_type", "severity"},
	)

	BlockedRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mytypist_blocked_requests_total",
			Help: "Requests rejected because the source IP is blocked",
		},
	)

	RecordsCleaned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mytypist_records_cleaned_total",
			Help: "Rows removed by retention jobs",
		},
		[]string{"table"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mytypist_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(EventsTracked)
		prometheus.MustRegister(SessionQuality)
		prometheus.MustRegister(CacheResults)
		prometheus.MustRegister(ThreatsDetected)
		prometheus.MustRegister(BlockedRequests)
		prometheus.MustRegister(RecordsCleaned)
		prometheus.MustRegister(RequestDuration)
	})
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
