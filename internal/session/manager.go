package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/harsh-dexter/notera/internal/audio"
	"github.com/harsh-dexter/notera/internal/logging"
	"github.com/harsh-dexter/notera/internal/metrics"
	"github.com/harsh-dexter/notera/internal/recorder"
)

var (
	// ErrSessionActive is returned by Start while a session is starting or recording
	ErrSessionActive = errors.New("a recording session is already active")
	// ErrNoActiveSession is returned by Stop when nothing is recording
	ErrNoActiveSession = errors.New("no active recording session")
	// ErrManagerClosed is returned once Close has been called
	ErrManagerClosed = errors.New("session manager closed")
)

// Status messages carried by error events
const (
	msgCreateFailed = "Failed to initiate live meeting"
	msgMkdirFailed  = "Failed to create recording directory"
	msgSpawnFailed  = "Failed to start recording process"
	msgShutdown     = "Capture host shutting down"
)

// State is the lifecycle state of the manager
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config contains session manager configuration
type Config struct {
	TempRoot          string
	Format            audio.Format
	ChunkDuration     time.Duration
	FlushPartialChunk bool
	Recorder          recorder.Spec
}

// Dependencies are the collaborators of the manager. Journal and Metrics
// may be nil.
type Dependencies struct {
	Backend  Backend
	Launcher recorder.Launcher
	Tasks    Tasks
	Journal  Journal
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Snapshot is a point-in-time view of the manager
type Snapshot struct {
	State         State      `json:"state"`
	SessionID     string     `json:"session_id,omitempty"`
	Dir           string     `json:"dir,omitempty"`
	ChunksEmitted int        `json:"chunks_emitted"`
	PendingBytes  int        `json:"pending_bytes"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	Recorder      string     `json:"recorder,omitempty"`
	Pid           int        `json:"pid,omitempty"`
}

// activeSession is owned by the loop goroutine
type activeSession struct {
	gen       uint64
	id        string
	dir       string
	proc      recorder.Process
	slicer    *audio.Slicer
	seq       int
	startedAt time.Time
	logger    zerolog.Logger
}

// Loop messages
type (
	startRequest struct {
		ctx   context.Context
		reply chan error
	}
	meetingCreated struct {
		req startRequest
		id  string
		err error
	}
	stopRequest struct {
		reply chan error
	}
	statusRequest struct {
		reply chan Snapshot
	}
	audioData struct {
		gen  uint64
		data []byte
	}
	recorderExited struct {
		gen  uint64
		code int
		err  error
	}
	closeRequest struct{}
)

// Manager runs at most one recording session at a time
type Manager struct {
	config    Config
	chunkSize int
	logger    zerolog.Logger

	backend   Backend
	launcher  recorder.Launcher
	tasks     Tasks
	journal   Journal
	metrics   *metrics.Metrics
	now       func() time.Time
	uploader  *Uploader
	finalizer *Finalizer
	bus       *Bus

	msgs      chan interface{}
	done      chan struct{}
	closeOnce chan struct{}

	// Loop-owned state
	state   State
	current *activeSession
	gen     uint64
}

// NewManager validates the configuration and starts the event loop
func NewManager(logger zerolog.Logger, config Config, deps Dependencies) (*Manager, error) {
	if deps.Backend == nil || deps.Launcher == nil || deps.Tasks == nil {
		return nil, fmt.Errorf("backend, launcher and tasks are required")
	}
	if config.TempRoot == "" {
		return nil, fmt.Errorf("temp root cannot be empty")
	}
	if config.Recorder.Binary == "" {
		return nil, fmt.Errorf("recorder binary cannot be empty")
	}

	chunkSize, err := audio.ChunkSizeBytes(config.Format, config.ChunkDuration)
	if err != nil {
		return nil, fmt.Errorf("invalid chunk configuration: %w", err)
	}

	if deps.Journal == nil {
		deps.Journal = NopJournal{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	logger = logger.With().Str("component", "session").Logger()

	m := &Manager{
		config:    config,
		chunkSize: chunkSize,
		logger:    logger,
		backend:   deps.Backend,
		launcher:  deps.Launcher,
		tasks:     deps.Tasks,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		now:       deps.Now,
		uploader:  NewUploader(deps.Backend, deps.Tasks, deps.Journal, deps.Metrics, logger),
		finalizer: NewFinalizer(deps.Backend, deps.Tasks, deps.Journal, deps.Metrics, logger),
		bus:       NewBus(),
		msgs:      make(chan interface{}, 64),
		done:      make(chan struct{}),
		closeOnce: make(chan struct{}, 1),
	}
	m.closeOnce <- struct{}{}

	go m.loop()

	return m, nil
}

// ChunkSize returns the payload length of every full chunk in bytes
func (m *Manager) ChunkSize() int {
	return m.chunkSize
}

// Subscribe registers a handler for events of the given kind
func (m *Manager) Subscribe(kind EventKind, handler Handler) (unsubscribe func()) {
	return m.bus.Subscribe(kind, handler)
}

// Start begins a recording session. It returns once the recorder is running
// or the attempt has failed; failures are also published as an error status.
func (m *Manager) Start(ctx context.Context) error {
	req := startRequest{ctx: ctx, reply: make(chan error, 1)}
	if err := m.send(ctx, req); err != nil {
		return err
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrManagerClosed
	}
}

// Stop ends the active session. The recorder is signalled and the backend
// session finalized in the background; Stop does not wait for either.
func (m *Manager) Stop() error {
	req := stopRequest{reply: make(chan error, 1)}
	if err := m.send(context.Background(), req); err != nil {
		return err
	}

	select {
	case err := <-req.reply:
		return err
	case <-m.done:
		return ErrManagerClosed
	}
}

// Status returns a snapshot of the current session
func (m *Manager) Status(ctx context.Context) (Snapshot, error) {
	req := statusRequest{reply: make(chan Snapshot, 1)}
	if err := m.send(ctx, req); err != nil {
		return Snapshot{}, err
	}

	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-m.done:
		return Snapshot{}, ErrManagerClosed
	}
}

// Close stops any active session, stops the loop and closes the event bus
func (m *Manager) Close() {
	select {
	case <-m.closeOnce:
		select {
		case m.msgs <- closeRequest{}:
		case <-m.done:
		}
	default:
	}
	<-m.done
	m.bus.Close()
}

func (m *Manager) send(ctx context.Context, msg interface{}) error {
	select {
	case <-m.done:
		return ErrManagerClosed
	default:
	}

	select {
	case m.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrManagerClosed
	}
}

// post is used by session goroutines; it gives up once the loop is gone
func (m *Manager) post(msg interface{}) bool {
	select {
	case <-m.done:
		return false
	default:
	}

	select {
	case m.msgs <- msg:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) loop() {
	defer close(m.done)

	for msg := range m.msgs {
		switch msg := msg.(type) {
		case startRequest:
			m.handleStart(msg)
		case meetingCreated:
			m.handleMeetingCreated(msg)
		case stopRequest:
			msg.reply <- m.handleStop()
		case statusRequest:
			msg.reply <- m.snapshot()
		case audioData:
			m.handleAudio(msg)
		case recorderExited:
			m.handleExit(msg)
		case closeRequest:
			if m.current != nil {
				m.teardown("shutdown", SessionStatus{Status: StatusStopped, Message: msgShutdown})
			}
			return
		}
	}
}

func (m *Manager) handleStart(req startRequest) {
	if m.state != StateIdle {
		m.logger.Warn().Str("state", m.state.String()).Msg("Start requested while a session is active, ignoring")
		req.reply <- ErrSessionActive
		return
	}

	m.state = StateStarting
	m.logger.Info().Msg("Requesting live meeting from backend")

	go func() {
		id, err := m.backend.CreateLiveMeeting(req.ctx)
		if !m.post(meetingCreated{req: req, id: id, err: err}) && err == nil && id != "" {
			// The manager closed while the request was in flight.
			m.finalizer.Finalize(id)
		}
	}()
}

func (m *Manager) handleMeetingCreated(msg meetingCreated) {
	req := msg.req

	if msg.err == nil && msg.id == "" {
		msg.err = errors.New("backend returned an empty meeting id")
	}
	if msg.err != nil {
		m.logger.Error().Err(msg.err).Msg("Failed to create live meeting")
		m.failStart("create_meeting", msgCreateFailed)
		req.reply <- fmt.Errorf("create live meeting: %w", msg.err)
		return
	}

	id := msg.id
	logger := logging.WithCorrelationID(m.logger.With().Str("session_id", id).Logger(), "")
	startedAt := m.now()
	dir := filepath.Join(m.config.TempRoot, fmt.Sprintf("session_%d", startedAt.UnixMilli()))

	if err := makeSessionDir(m.config.TempRoot, dir); err != nil {
		logger.Error().Err(err).Str("dir", dir).Msg("Failed to create session directory")
		m.finalizer.Finalize(id)
		m.failStart("mkdir", msgMkdirFailed)
		req.reply <- fmt.Errorf("create session directory: %w", err)
		return
	}

	slicer, err := audio.NewSlicer(m.chunkSize, m.config.Format.BlockAlign())
	if err != nil {
		// Unreachable after NewManager validated the chunk size.
		m.finalizer.Finalize(id)
		m.failStart("slicer", msgSpawnFailed)
		req.reply <- err
		return
	}

	proc, err := m.launcher.Launch(req.ctx, m.config.Recorder)
	if err != nil {
		logger.Error().Err(err).Str("recorder", m.config.Recorder.String()).Msg("Failed to start recorder")
		m.finalizer.Finalize(id)
		m.failStart("spawn", msgSpawnFailed)
		req.reply <- fmt.Errorf("start recorder: %w", err)
		return
	}

	m.gen++
	sess := &activeSession{
		gen:       m.gen,
		id:        id,
		dir:       dir,
		proc:      proc,
		slicer:    slicer,
		startedAt: startedAt,
		logger:    logger,
	}
	m.current = sess
	m.state = StateRecording

	if err := m.journal.SessionStarted(context.Background(), id, dir, startedAt); err != nil {
		logger.Warn().Err(err).Msg("Failed to record session start")
	}

	pumpDone := make(chan struct{})
	go m.pump(sess.gen, proc.Stdout(), pumpDone)
	go logStderr(logger, proc.Stderr())
	go m.await(sess.gen, proc, pumpDone)

	m.metrics.RecordSessionStarted()
	logger.Info().
		Str("dir", dir).
		Str("recorder", m.config.Recorder.String()).
		Int("pid", proc.Pid()).
		Int("chunk_bytes", m.chunkSize).
		Msg("Recording started")

	m.bus.Publish(SessionStarted{SessionID: id})
	req.reply <- nil
}

func (m *Manager) failStart(reason, message string) {
	m.state = StateIdle
	m.current = nil
	m.metrics.RecordSessionFailed(reason)
	m.bus.Publish(SessionStatus{Status: StatusError, Message: message})
}

func (m *Manager) handleStop() error {
	if m.state != StateRecording || m.current == nil {
		m.logger.Warn().Str("state", m.state.String()).Msg("Stop requested with no active recording, ignoring")
		return ErrNoActiveSession
	}

	m.teardown("stopped", SessionStatus{Status: StatusStopped})
	return nil
}

func (m *Manager) handleAudio(msg audioData) {
	sess := m.current
	if sess == nil || msg.gen != sess.gen {
		return
	}

	m.metrics.RecordAudioBytes(len(msg.data))
	for _, chunk := range sess.slicer.Feed(msg.data) {
		sess.seq++
		m.emitChunk(sess, sess.seq, chunk)
	}
}

func (m *Manager) handleExit(msg recorderExited) {
	sess := m.current
	if sess == nil || msg.gen != sess.gen {
		// Exit of a recorder we already stopped.
		return
	}

	message := fmt.Sprintf("Recorder exited unexpectedly (code %d)", msg.code)
	if msg.err != nil {
		message = fmt.Sprintf("Recorder process error: %v", msg.err)
	}
	sess.logger.Error().Int("exit_code", msg.code).AnErr("wait_error", msg.err).Msg("Recorder exited while recording")

	m.teardown("recorder_exit", SessionStatus{Status: StatusError, Message: message})
}

// teardown ends the current session: signal the recorder, settle the
// remainder, clear state, finalize and publish.
func (m *Manager) teardown(reason string, status SessionStatus) {
	sess := m.current

	if err := sess.proc.Terminate(); err != nil {
		sess.logger.Warn().Err(err).Msg("Failed to signal recorder")
	}

	if m.config.FlushPartialChunk {
		if rest := sess.slicer.Flush(); len(rest) > 0 {
			sess.seq++
			m.emitChunk(sess, sess.seq, rest)
		}
	} else if pending := sess.slicer.Pending(); pending > 0 {
		m.metrics.RecordPartialDropped(pending)
		sess.logger.Debug().Int("bytes", pending).Msg("Discarding partial chunk")
		sess.slicer.Reset()
	}

	m.current = nil
	m.state = StateIdle

	endedAt := m.now()
	m.finalizer.Finalize(sess.id)
	m.tasks.Go("journal-session-end", map[string]interface{}{"session_id": sess.id}, func(ctx context.Context) error {
		return m.journal.SessionEnded(ctx, sess.id, endedAt, reason)
	})
	m.metrics.RecordSessionEnded(reason, endedAt.Sub(sess.startedAt).Seconds())

	sess.logger.Info().
		Str("reason", reason).
		Int("chunks", sess.seq).
		Dur("duration", endedAt.Sub(sess.startedAt)).
		Msg("Recording session ended")

	status.SessionID = sess.id
	m.bus.Publish(status)
}

// emitChunk writes chunk as a WAV file in the background and, once the write
// succeeds, hands it to the uploader. index is already assigned.
func (m *Manager) emitChunk(sess *activeSession, index int, pcm []byte) {
	m.metrics.RecordChunkGenerated()

	id := sess.id
	fileName := fmt.Sprintf("chunk-%05d.wav", index)
	path := filepath.Join(sess.dir, fileName)
	format := m.config.Format
	logger := sess.logger

	fields := map[string]interface{}{
		"session_id":  id,
		"chunk_index": index,
		"file":        fileName,
	}

	m.tasks.Go("write-chunk", fields, func(ctx context.Context) error {
		data, err := audio.EncodeWAV(pcm, format)
		if err == nil {
			err = os.WriteFile(path, data, 0644)
		}
		if err != nil {
			m.metrics.RecordChunkWriteFailure()
			return fmt.Errorf("chunk skipped: %w", err)
		}
		m.metrics.RecordChunkWritten(len(data))

		if err := m.journal.ChunkWritten(ctx, id, index, path, int64(len(data))); err != nil {
			logger.Warn().Err(err).Int("chunk_index", index).Msg("Failed to record chunk")
		}

		logger.Debug().Int("chunk_index", index).Str("path", path).Msg("Chunk written")
		m.uploader.Upload(path, id, fileName, index)
		return nil
	})
}

func (m *Manager) snapshot() Snapshot {
	snap := Snapshot{State: m.state}
	if sess := m.current; sess != nil {
		startedAt := sess.startedAt
		snap.SessionID = sess.id
		snap.Dir = sess.dir
		snap.ChunksEmitted = sess.seq
		snap.PendingBytes = sess.slicer.Pending()
		snap.StartedAt = &startedAt
		snap.Recorder = m.config.Recorder.String()
		snap.Pid = sess.proc.Pid()
	}
	return snap
}

// pump forwards recorder stdout to the loop until EOF
func (m *Manager) pump(gen uint64, stdout io.ReadCloser, done chan<- struct{}) {
	defer close(done)
	defer stdout.Close()

	var r io.Reader = stdout
	if m.config.Recorder.OutputFormat == recorder.OutputWAV {
		r = audio.NewPCMReader(stdout)
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !m.post(audioData{gen: gen, data: data}) {
				return
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				m.logger.Debug().Err(err).Uint64("gen", gen).Msg("Recorder stdout closed")
			}
			return
		}
	}
}

// await reports the recorder's exit once its output has been drained
func (m *Manager) await(gen uint64, proc recorder.Process, pumpDone <-chan struct{}) {
	code, err := proc.Wait()

	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
	}

	m.post(recorderExited{gen: gen, code: code, err: err})
}

func logStderr(logger zerolog.Logger, stderr io.ReadCloser) {
	defer stderr.Close()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			logger.Warn().Str("stream", "stderr").Msg(line)
		}
	}
}

// makeSessionDir creates root if needed and then dir itself. An existing dir
// is an error so a session never writes into another session's chunks.
func makeSessionDir(root, dir string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	return os.Mkdir(dir, 0755)
}
