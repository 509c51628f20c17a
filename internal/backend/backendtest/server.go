// Package backendtest provides an in-memory stand-in for the notera backend's
// live meeting endpoints. It backs the package tests and cmd/fake-backend.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harsh-dexter/notera/internal/audio"
)

// Upload is one chunk received by the fake backend
type Upload struct {
	SessionID  string
	FileName   string
	ChunkIndex int
	Data       []byte
	Duration   float64 // seconds of audio in Data
	Header     http.Header
	ReceivedAt time.Time
}

// Server implements create-live, transcribe-chunk and finalize-live
type Server struct {
	// NextID returns the id for the next create-live call. Defaults to meeting-N.
	NextID func() string

	// Status codes forced for each endpoint; zero means normal behaviour.
	CreateStatus   int
	UploadStatus   int
	FinalizeStatus int

	// Called after an upload has been recorded, if set
	OnUpload func(Upload)

	mu        sync.Mutex
	created   []string
	live      map[string]bool
	uploads   []Upload
	finalized []string
	notify    chan struct{}
}

// NewServer creates an empty fake backend
func NewServer() *Server {
	return &Server{
		live:   make(map[string]bool),
		notify: make(chan struct{}, 1),
	}
}

// ServeHTTP routes the three live meeting endpoints
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.Method == http.MethodPost && path == "/meetings/create-live":
		s.handleCreate(w, r)
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/upload/transcribe-chunk/"):
		s.handleUpload(w, r, strings.TrimPrefix(path, "/upload/transcribe-chunk/"))
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/meetings/") && strings.HasSuffix(path, "/finalize-live"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/meetings/"), "/finalize-live")
		s.handleFinalize(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateStatus != 0 {
		http.Error(w, "create-live failed", s.CreateStatus)
		return
	}

	var id string
	if s.NextID != nil {
		id = s.NextID()
	} else {
		id = fmt.Sprintf("meeting-%d", len(s.created)+1)
	}
	s.created = append(s.created, id)
	if id != "" {
		s.live[id] = true
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"status": "recording_live",
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if strings.ToLower(filepath.Ext(header.Filename)) != ".wav" {
		http.Error(w, "Only .wav chunks are accepted", http.StatusBadRequest)
		return
	}

	index, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil || index < 1 {
		http.Error(w, "chunk_index must be a positive integer", http.StatusUnprocessableEntity)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	info, err := audio.GetWAVInfo(data)
	if err != nil {
		http.Error(w, "Invalid WAV chunk: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	upload := Upload{
		SessionID:  sessionID,
		FileName:   header.Filename,
		ChunkIndex: index,
		Data:       data,
		Duration:   info.Duration,
		Header:     r.Header.Clone(),
		ReceivedAt: time.Now(),
	}

	s.mu.Lock()
	status := s.UploadStatus
	if status == 0 {
		s.uploads = append(s.uploads, upload)
	}
	onUpload := s.OnUpload
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, "transcription failed", status)
		return
	}

	if onUpload != nil {
		onUpload(upload)
	}
	s.signal()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"meeting_id":  sessionID,
		"chunk_index": index,
		"status":      "queued",
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	if s.FinalizeStatus != 0 {
		status := s.FinalizeStatus
		s.mu.Unlock()
		http.Error(w, "finalize failed", status)
		return
	}
	if !s.live[id] {
		s.mu.Unlock()
		http.Error(w, "Meeting not found or not recording live", http.StatusNotFound)
		return
	}
	delete(s.live, id)
	s.finalized = append(s.finalized, id)
	s.mu.Unlock()

	s.signal()
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "processing"})
}

func (s *Server) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Created returns the ids handed out so far
func (s *Server) Created() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.created...)
}

// Uploads returns the chunks received so far, in arrival order
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Finalized returns the ids finalized so far
func (s *Server) Finalized() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.finalized...)
}

// WaitFor polls cond after every upload or finalize until it holds or the
// timeout passes.
func (s *Server) WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if cond() {
			return true
		}
		select {
		case <-s.notify:
		case <-ticker.C:
		case <-deadline.C:
			return cond()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
