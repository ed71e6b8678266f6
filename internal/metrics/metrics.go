// Package metrics exposes Prometheus collectors for access decisions,
// the face service and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	accessDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facepass_access_decisions_total",
			Help: "Access decisions by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)
	accessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "facepass_access_decision_duration_seconds",
			Help:    "Time to reach an access decision",
			Buckets: prometheus.DefBuckets,
		},
	)
	matchConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "facepass_match_confidence",
			Help:    "Confidence of accepted identifications",
			Buckets: prometheus.LinearBuckets(0.4, 0.05, 13),
		},
	)
	faceServiceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facepass_face_service_requests_total",
			Help: "Requests to the face embedding service",
		},
		[]string{"status"},
	)
	faceServiceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "facepass_face_service_duration_seconds",
			Help:    "Face embedding service latency",
			Buckets: prometheus.DefBuckets,
		},
	)
	recorderQueue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "facepass_recorder_queue_length",
			Help: "Access registers waiting to be written",
		},
	)
	recorderFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "facepass_recorder_failures_total",
			Help: "Access registers dropped after all retries failed",
		},
	)
	galleryCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facepass_gallery_cache_total",
			Help: "Descriptor gallery cache lookups",
		},
		[]string{"result"},
	)
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facepass_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"path", "method", "status"},
	)
	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facepass_api_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(accessDecisions, accessDuration, matchConfidence)
	prometheus.MustRegister(faceServiceRequests, faceServiceDuration)
	prometheus.MustRegister(recorderQueue, recorderFailures, galleryCache)
	prometheus.MustRegister(apiRequests, apiDuration)
}

// ObserveDecision counts one access decision.
func ObserveDecision(allowed bool, reason string, confidence float64, elapsed time.Duration) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
		matchConfidence.Observe(confidence)
	}
	accessDecisions.WithLabelValues(outcome, reason).Inc()
	accessDuration.Observe(elapsed.Seconds())
}

// ObserveFaceService records one embedding service call. err is the
// transport or breaker error, nil on success.
func ObserveFaceService(err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	faceServiceRequests.WithLabelValues(status).Inc()
	faceServiceDuration.Observe(elapsed.Seconds())
}

func SetRecorderQueue(n int) {
	recorderQueue.Set(float64(n))
}

func IncRecorderFailures() {
	recorderFailures.Inc()
}

func GalleryCacheHit() {
	galleryCache.WithLabelValues("hit").Inc()
}

func GalleryCacheMiss() {
	galleryCache.WithLabelValues("miss").Inc()
}

// ObserveAPI records one HTTP request. path should be the route pattern,
// not the raw URL, to keep label cardinality bounded.
func ObserveAPI(path, method string, status int, elapsed time.Duration) {
	apiRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	apiDuration.WithLabelValues(path, method).Observe(elapsed.Seconds())
}
