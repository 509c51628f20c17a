package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture host.
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsFailed  *prometheus.CounterVec
	SessionsEnded   *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	SessionDuration prometheus.Histogram
	AudioBytesRead  prometheus.Counter

	// Chunk metrics
	ChunksGenerated     prometheus.Counter
	ChunkSize           prometheus.Histogram
	ChunkWriteFailures  prometheus.Counter
	PartialBytesDropped prometheus.Counter

	// Backend metrics
	Uploads        *prometheus.CounterVec
	UploadDuration prometheus.Histogram
	Finalizations  *prometheus.CounterVec

	// Background task metrics
	TasksInFlight prometheus.Gauge
	TaskFailures  *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "notera_sessions_started_total",
			Help: "Total number of recording sessions that reached the recording state",
		}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notera_sessions_failed_total",
			Help: "Total number of session start attempts that failed",
		}, []string{"reason"}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notera_sessions_ended_total",
			Help: "Total number of recording sessions that ended",
		}, []string{"reason"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notera_active_sessions",
			Help: "1 while a recording session is active",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notera_session_duration_seconds",
			Help:    "Duration of recording sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~1.5 hours
		}),
		AudioBytesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "notera_audio_bytes_read_total",
			Help: "Total number of PCM bytes read from the recorder",
		}),

		ChunksGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "notera_chunks_generated_total",
			Help: "Total number of audio chunks cut from the recorder stream",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notera_chunk_size_bytes",
			Help:    "Size of written chunk files in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10), // 16KB to ~8MB
		}),
		ChunkWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "notera_chunk_write_failures_total",
			Help: "Total number of chunks skipped because the file could not be written",
		}),
		PartialBytesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "notera_partial_bytes_dropped_total",
			Help: "Total number of buffered bytes discarded at session end",
		}),

		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notera_chunk_uploads_total",
			Help: "Total number of chunk uploads by outcome",
		}, []string{"status"}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notera_chunk_upload_duration_seconds",
			Help:    "Duration of chunk upload requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		Finalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notera_finalizations_total",
			Help: "Total number of finalize-live requests by outcome",
		}, []string{"status"}),

		TasksInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notera_background_tasks_in_flight",
			Help: "Current number of detached background tasks",
		}),
		TaskFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notera_background_task_failures_total",
			Help: "Total number of background tasks that returned an error",
		}, []string{"task"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notera_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notera_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notera_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionStarted marks a session as recording
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Set(1)
}

// RecordSessionFailed counts a start attempt that never reached recording
func (m *Metrics) RecordSessionFailed(reason string) {
	if m == nil {
		return
	}
	m.SessionsFailed.WithLabelValues(reason).Inc()
}

// RecordSessionEnded records the end of a session and its duration
func (m *Metrics) RecordSessionEnded(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.ActiveSessions.Set(0)
}

// RecordAudioBytes adds to the PCM bytes counter
func (m *Metrics) RecordAudioBytes(n int) {
	if m == nil {
		return
	}
	m.AudioBytesRead.Add(float64(n))
}

// RecordChunkGenerated records a chunk cut from the stream
func (m *Metrics) RecordChunkGenerated() {
	if m == nil {
		return
	}
	m.ChunksGenerated.Inc()
}

// RecordChunkWritten records the size of a written chunk file
func (m *Metrics) RecordChunkWritten(sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkWriteFailure increments the write failures counter
func (m *Metrics) RecordChunkWriteFailure() {
	if m == nil {
		return
	}
	m.ChunkWriteFailures.Inc()
}

// RecordPartialDropped counts bytes discarded when a session ends mid-window
func (m *Metrics) RecordPartialDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PartialBytesDropped.Add(float64(n))
}

// RecordUpload records a chunk upload outcome
func (m *Metrics) RecordUpload(success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(outcome(success)).Inc()
	m.UploadDuration.Observe(durationSeconds)
}

// RecordFinalize records a finalize-live outcome
func (m *Metrics) RecordFinalize(success bool) {
	if m == nil {
		return
	}
	m.Finalizations.WithLabelValues(outcome(success)).Inc()
}

// TaskStarted increments the in-flight task gauge
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.TasksInFlight.Inc()
}

// TaskFinished decrements the in-flight task gauge and counts failures
func (m *Metrics) TaskFinished(task string, err error) {
	if m == nil {
		return
	}
	m.TasksInFlight.Dec()
	if err != nil {
		m.TaskFailures.WithLabelValues(task).Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
