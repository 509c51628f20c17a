package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Upload states of a chunk
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)

// SessionSummary is one session with per-state chunk counts
type SessionSummary struct {
	ID             string     `json:"id"`
	Dir            string     `json:"dir"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndReason      string     `json:"end_reason,omitempty"`
	FinalizeStatus string     `json:"finalize_status,omitempty"`
	FinalizeError  string     `json:"finalize_error,omitempty"`
	Chunks         int        `json:"chunks"`
	Uploaded       int        `json:"uploaded"`
	Failed         int        `json:"failed"`
	Pending        int        `json:"pending"`
}

// Chunk is the delivery record of one chunk file
type Chunk struct {
	SessionID    string     `json:"session_id"`
	Index        int        `json:"chunk_index"`
	FilePath     string     `json:"file_path"`
	SizeBytes    int64      `json:"size_bytes"`
	WrittenAt    time.Time  `json:"written_at"`
	UploadStatus string     `json:"upload_status"`
	UploadError  string     `json:"upload_error,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
}

// SessionStarted records a session that reached the recording state
func (l *Ledger) SessionStarted(ctx context.Context, id, dir string, startedAt time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sessions (id, dir, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dir = excluded.dir, started_at = excluded.started_at`,
		id, dir, startedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// SessionEnded records why and when a session stopped
func (l *Ledger) SessionEnded(ctx context.Context, id string, endedAt time.Time, reason string) error {
	_, err := l.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ?",
		endedAt.UnixMilli(), reason, id)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	return nil
}

// SessionFinalized records the outcome of the finalize call
func (l *Ledger) SessionFinalized(ctx context.Context, id string, finalizeErr error) error {
	status, errText := outcome(finalizeErr)
	if status == StatusUploaded {
		status = "finalized"
	}
	_, err := l.db.ExecContext(ctx,
		"UPDATE sessions SET finalize_status = ?, finalize_error = ? WHERE id = ?",
		status, errText, id)
	if err != nil {
		return fmt.Errorf("failed to record finalize: %w", err)
	}
	return nil
}

// ChunkWritten records a chunk file that was written to disk
func (l *Ledger) ChunkWritten(ctx context.Context, sessionID string, index int, path string, size int64) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO chunks (session_id, chunk_index, file_path, size_bytes, written_at, upload_status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, index, path, size, time.Now().UnixMilli(), StatusPending)
	if err != nil {
		return fmt.Errorf("failed to record chunk %d: %w", index, err)
	}
	return nil
}

// ChunkDelivered records the upload outcome of a chunk
func (l *Ledger) ChunkDelivered(ctx context.Context, sessionID string, index int, deliveryErr error) error {
	status, errText := outcome(deliveryErr)
	_, err := l.db.ExecContext(ctx,
		`UPDATE chunks SET upload_status = ?, upload_error = ?, delivered_at = ?
		 WHERE session_id = ? AND chunk_index = ?`,
		status, errText, time.Now().UnixMilli(), sessionID, index)
	if err != nil {
		return fmt.Errorf("failed to record delivery of chunk %d: %w", index, err)
	}
	return nil
}

// ListSessions returns the most recent sessions first
func (l *Ledger) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT s.id, s.dir, s.started_at, s.ended_at, s.end_reason,
		       s.finalize_status, s.finalize_error,
		       COUNT(c.chunk_index),
		       COALESCE(SUM(CASE WHEN c.upload_status = 'uploaded' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN c.upload_status = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN c.upload_status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM sessions s
		LEFT JOIN chunks c ON c.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionSummary{}
	for rows.Next() {
		var s SessionSummary
		var startedAt int64
		var endedAt sql.NullInt64
		var endReason, finalizeStatus, finalizeError sql.NullString

		if err := rows.Scan(&s.ID, &s.Dir, &startedAt, &endedAt, &endReason,
			&finalizeStatus, &finalizeError,
			&s.Chunks, &s.Uploaded, &s.Failed, &s.Pending); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		s.StartedAt = time.UnixMilli(startedAt)
		s.EndedAt = nullMillis(endedAt)
		s.EndReason = endReason.String
		s.FinalizeStatus = finalizeStatus.String
		s.FinalizeError = finalizeError.String
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// ListChunks returns a session's chunks in index order
func (l *Ledger) ListChunks(ctx context.Context, sessionID string) ([]Chunk, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT session_id, chunk_index, file_path, size_bytes, written_at,
		       upload_status, upload_error, delivered_at
		FROM chunks WHERE session_id = ?
		ORDER BY chunk_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	chunks := []Chunk{}
	for rows.Next() {
		var c Chunk
		var writtenAt int64
		var uploadError sql.NullString
		var deliveredAt sql.NullInt64

		if err := rows.Scan(&c.SessionID, &c.Index, &c.FilePath, &c.SizeBytes, &writtenAt,
			&c.UploadStatus, &uploadError, &deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		c.WrittenAt = time.UnixMilli(writtenAt)
		c.UploadError = uploadError.String
		c.DeliveredAt = nullMillis(deliveredAt)
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}

func outcome(err error) (string, sql.NullString) {
	if err == nil {
		return StatusUploaded, sql.NullString{}
	}
	return StatusFailed, sql.NullString{String: err.Error(), Valid: true}
}

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
