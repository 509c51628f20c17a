package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/harsh-dexter/notera/internal/backend"
	"github.com/harsh-dexter/notera/internal/config"
	"github.com/harsh-dexter/notera/internal/ledger"
	"github.com/harsh-dexter/notera/internal/metrics"
	"github.com/harsh-dexter/notera/internal/recorder"
	"github.com/harsh-dexter/notera/internal/session"
	"github.com/harsh-dexter/notera/internal/version"
)

// RecordingController is the part of the session manager the API drives
type RecordingController interface {
	Start(ctx context.Context) error
	Stop() error
	Status(ctx context.Context) (session.Snapshot, error)
	Subscribe(kind session.EventKind, handler session.Handler) (unsubscribe func())
}

// SessionHistory lists past sessions. The ledger implements it.
type SessionHistory interface {
	ListSessions(ctx context.Context, limit int) ([]ledger.SessionSummary, error)
	ListChunks(ctx context.Context, sessionID string) ([]ledger.Chunk, error)
}

// DeviceLister enumerates capture devices
type DeviceLister func(ctx context.Context) ([]recorder.Device, error)

// Dependencies are the components the API reports on. History, Backend and
// Tasks are optional.
type Dependencies struct {
	Recording RecordingController
	Devices   DeviceLister
	History   SessionHistory
	Backend   interface{ GetStats() backend.ClientStats }
	Tasks     interface{ InFlight() int }
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

// HTTPServer provides the local control API used by the desktop client
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	logger  zerolog.Logger
	config  *config.Config
	deps    Dependencies

	origins   originPolicy
	upgrader  websocket.Upgrader
	startTime time.Time

	mu      sync.Mutex
	clients map[*eventClient]struct{}
}

// NewHTTPServer creates the control API server
func NewHTTPServer(appConfig *config.Config, logger zerolog.Logger, deps Dependencies) *HTTPServer {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger.With().Str("component", "http").Logger(),
		config:    appConfig,
		deps:      deps,
		startTime: time.Now(),
		clients:   make(map[*eventClient]struct{}),
	}
	h.origins = newOriginPolicy(appConfig.HTTP.AllowedOrigins)
	h.upgrader = newUpgrader(h.origins)

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:        appConfig.HTTP.ListenAddress(),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events connections are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// Handler returns the routed handler without a listener
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Recording control
	mux.HandleFunc("/recording", h.withMetrics("/recording", h.handleRecording))
	mux.HandleFunc("/recording/start", h.withMetrics("/recording/start", h.sameOrigin(h.handleStart)))
	mux.HandleFunc("/recording/stop", h.withMetrics("/recording/stop", h.sameOrigin(h.handleStop)))

	mux.HandleFunc("/devices", h.withMetrics("/devices", h.handleDevices))
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionChunks))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Session events stream (websocket, not wrapped: the response is hijacked)
	mux.HandleFunc("/events", h.handleEvents)

	mux.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// sameOrigin rejects browser requests from pages outside the origin policy,
// the same one /events applies to websocket handshakes.
func (h *HTTPServer) sameOrigin(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.origins.allows(r) {
			h.logger.Warn().
				Str("origin", r.Header.Get("Origin")).
				Str("path", r.URL.Path).
				Msg("Rejected cross-origin control request")
			http.Error(w, "Forbidden origin", http.StatusForbidden)
			return
		}
		handler(w, r)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info().Str("address", h.server.Addr).Msg("Starting control API server")

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server and disconnects event clients
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info().Msg("Stopping control API server...")

	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.mu.Unlock()

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := h.deps.Recording.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "notera-capture",
			"version": version.Version,
		},
		"recording": snap.State,
	})
}

// handleRecording implements GET /recording
func (h *HTTPServer) handleRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := h.deps.Recording.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleStart implements POST /recording/start
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.deps.Recording.Start(r.Context())
	switch {
	case errors.Is(err, session.ErrSessionActive):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, session.ErrManagerClosed):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		// Details went out as a recording-status event as well.
		writeError(w, http.StatusBadGateway, err)
		return
	}

	snap, err := h.deps.Recording.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleStop implements POST /recording/stop
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.deps.Recording.Stop()
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(session.StatusStopped)})
}

// handleDevices implements GET /devices
func (h *HTTPServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Devices == nil {
		writeError(w, http.StatusNotImplemented, errors.New("device listing is not available"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	response := map[string]interface{}{}

	// A failed enumeration still answers with an empty list.
	devices, err := h.deps.Devices(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to list capture devices")
		response["error"] = err.Error()
	}
	if devices == nil {
		devices = []recorder.Device{}
	}

	response["total_devices"] = len(devices)
	response["devices"] = devices
	writeJSON(w, http.StatusOK, response)
}

// handleSessions implements GET /sessions?limit=N
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.History == nil {
		writeError(w, http.StatusNotImplemented, errors.New("session ledger is disabled"))
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	sessions, err := h.deps.History.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_sessions": len(sessions),
		"sessions":       sessions,
	})
}

// handleSessionChunks implements GET /sessions/{id}
func (h *HTTPServer) handleSessionChunks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.History == nil {
		writeError(w, http.StatusNotImplemented, errors.New("session ledger is disabled"))
		return
	}

	id := r.URL.Path[len("/sessions/"):]
	if id == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	chunks, err := h.deps.History.ListChunks(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"chunks":     chunks,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.config.Sanitized()
	sanitizedConfig := map[string]interface{}{
		"backend": map[string]interface{}{
			"base_url":               c.Backend.BaseURL,
			"api_key":                c.Backend.APIKey,
			"timeout":                c.Backend.Timeout,
			"max_concurrent_uploads": c.Backend.MaxConcurrentUploads,
		},
		"audio": map[string]interface{}{
			"sample_rate":         c.Audio.SampleRate,
			"channels":            c.Audio.Channels,
			"bit_depth":           c.Audio.BitDepth,
			"chunk_duration":      c.Audio.ChunkDuration,
			"flush_partial_chunk": c.Audio.FlushPartialChunk,
		},
		"recorder": map[string]interface{}{
			"binary":        c.Recorder.Binary,
			"args":          c.Recorder.Args,
			"device":        c.Recorder.Device,
			"output_format": c.Recorder.OutputFormat,
			"stop_timeout":  c.Recorder.StopTimeout,
		},
		"storage": map[string]interface{}{
			"temp_root":   c.Storage.TempRoot,
			"ledger_path": c.Storage.LedgerPath,
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
	}

	if snap, err := h.deps.Recording.Status(r.Context()); err == nil {
		stats["recording"] = snap
	}
	if h.deps.Backend != nil {
		stats["backend"] = h.deps.Backend.GetStats()
	}
	if h.deps.Tasks != nil {
		stats["background_tasks"] = h.deps.Tasks.InFlight()
	}

	h.mu.Lock()
	stats["event_clients"] = len(h.clients)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "notera capture host",
		"version": version.Version,
		"endpoints": map[string]interface{}{
			"GET /":                 "API documentation",
			"GET /health":           "Service health check",
			"GET /recording":        "Current recording session",
			"POST /recording/start": "Start a recording session",
			"POST /recording/stop":  "Stop the active recording session",
			"GET /devices":          "List capture devices",
			"GET /sessions":         "Recent sessions from the local ledger",
			"GET /sessions/{id}":    "Chunk delivery records of a session",
			"GET /events":           "WebSocket stream of recording events",
			"GET /config":           "Get service configuration",
			"GET /stats":            "Get service statistics",
			"GET /metrics":          "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *HTTPServer) addClient(c *eventClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *HTTPServer) removeClient(c *eventClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}
