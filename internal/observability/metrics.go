package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	ttsJobsTotal         *prometheus.CounterVec
	ttsSentencesTotal    prometheus.Counter
	ttsQueueDepth        prometheus.Gauge
	statusStreamsActive  prometheus.Gauge
	submissionsGraded    prometheus.Counter
	submissionScoreRatio prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dictation_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		ttsJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dictation_tts_jobs_total",
			Help: "TTS jobs finished, by outcome.",
		}, []string{"outcome"})

		ttsSentencesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dictation_tts_sentences_total",
			Help: "Sentences synthesized and stored.",
		})

		ttsQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_tts_queue_depth",
			Help: "TTS jobs waiting for a worker.",
		})

		statusStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dictation_tts_status_streams_active",
			Help: "Open websocket streams watching TTS progress.",
		})

		submissionsGraded = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dictation_submissions_graded_total",
			Help: "Submissions graded and stored.",
		})

		submissionScoreRatio = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictation_submission_score_ratio",
			Help:    "Score divided by total for graded submissions.",
			Buckets: []float64{0, 0.2, 0.4, 0.6, 0.8, 0.9, 1.0},
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			ttsJobsTotal,
			ttsSentencesTotal,
			ttsQueueDepth,
			statusStreamsActive,
			submissionsGraded,
			submissionScoreRatio,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// TTSJobs counts finished jobs labelled "complete" or "error".
func TTSJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return ttsJobsTotal
}

func TTSSentences() prometheus.Counter {
	RegisterMetrics()
	return ttsSentencesTotal
}

func TTSQueueDepth() prometheus.Gauge {
	RegisterMetrics()
	return ttsQueueDepth
}

func StatusStreamsActive() prometheus.Gauge {
	RegisterMetrics()
	return statusStreamsActive
}

func SubmissionsGraded() prometheus.Counter {
	RegisterMetrics()
	return submissionsGraded
}

func SubmissionScoreRatio() prometheus.Histogram {
	RegisterMetrics()
	return submissionScoreRatio
}
