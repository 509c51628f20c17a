package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/harsh-dexter/notera/internal/metrics"
)

// Uploader hands chunk files to the backend in the background. Each chunk is
// attempted exactly once and the file is left on disk whatever the outcome.
type Uploader struct {
	backend Backend
	tasks   Tasks
	journal Journal
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewUploader creates an uploader
func NewUploader(backend Backend, tasks Tasks, journal Journal, m *metrics.Metrics, logger zerolog.Logger) *Uploader {
	if journal == nil {
		journal = NopJournal{}
	}
	return &Uploader{
		backend: backend,
		tasks:   tasks,
		journal: journal,
		metrics: m,
		logger:  logger,
	}
}

// Upload schedules delivery of one chunk and returns immediately
func (u *Uploader) Upload(filePath, sessionID, fileName string, index int) {
	fields := map[string]interface{}{
		"session_id":  sessionID,
		"chunk_index": index,
		"file":        fileName,
	}

	u.tasks.Go("upload-chunk", fields, func(ctx context.Context) error {
		startTime := time.Now()
		err := u.backend.UploadChunk(ctx, sessionID, filePath, fileName, index)
		u.metrics.RecordUpload(err == nil, time.Since(startTime).Seconds())

		if jerr := u.journal.ChunkDelivered(ctx, sessionID, index, err); jerr != nil {
			u.logger.Warn().Err(jerr).Int("chunk_index", index).Msg("Failed to record chunk delivery")
		}

		if err != nil {
			return err
		}

		u.logger.Info().
			Str("session_id", sessionID).
			Int("chunk_index", index).
			Str("file", fileName).
			Dur("took", time.Since(startTime)).
			Msg("Chunk uploaded")
		return nil
	})
}

// Finalizer tells the backend a live session is over, in the background
type Finalizer struct {
	backend Backend
	tasks   Tasks
	journal Journal
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewFinalizer creates a finalizer
func NewFinalizer(backend Backend, tasks Tasks, journal Journal, m *metrics.Metrics, logger zerolog.Logger) *Finalizer {
	if journal == nil {
		journal = NopJournal{}
	}
	return &Finalizer{
		backend: backend,
		tasks:   tasks,
		journal: journal,
		metrics: m,
		logger:  logger,
	}
}

// Finalize schedules the finalize-live call for sessionID and returns immediately.
// Uploads still in flight for the session are not awaited.
func (f *Finalizer) Finalize(sessionID string) {
	if sessionID == "" {
		return
	}

	f.tasks.Go("finalize", map[string]interface{}{"session_id": sessionID}, func(ctx context.Context) error {
		err := f.backend.FinalizeLiveMeeting(ctx, sessionID)
		f.metrics.RecordFinalize(err == nil)

		if jerr := f.journal.SessionFinalized(ctx, sessionID, err); jerr != nil {
			f.logger.Warn().Err(jerr).Str("session_id", sessionID).Msg("Failed to record finalize")
		}

		if err != nil {
			return err
		}

		f.logger.Info().Str("session_id", sessionID).Msg("Live meeting finalized")
		return nil
	})
}
