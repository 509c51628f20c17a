package session

import (
	"context"
	"time"
)

// Backend is the subset of the backend client the session needs
type Backend interface {
	CreateLiveMeeting(ctx context.Context) (string, error)
	UploadChunk(ctx context.Context, sessionID, filePath, fileName string, index int) error
	FinalizeLiveMeeting(ctx context.Context, sessionID string) error
}

// Journal records what happened to sessions and chunks. Failures are logged
// and never affect capture.
type Journal interface {
	SessionStarted(ctx context.Context, id, dir string, startedAt time.Time) error
	SessionEnded(ctx context.Context, id string, endedAt time.Time, reason string) error
	SessionFinalized(ctx context.Context, id string, finalizeErr error) error
	ChunkWritten(ctx context.Context, sessionID string, index int, path string, size int64) error
	ChunkDelivered(ctx context.Context, sessionID string, index int, deliveryErr error) error
}

// Tasks runs detached work
type Tasks interface {
	Go(name string, fields map[string]interface{}, fn func(ctx context.Context) error)
}

// NopJournal discards every record
type NopJournal struct{}

func (NopJournal) SessionStarted(context.Context, string, string, time.Time) error { return nil }
func (NopJournal) SessionEnded(context.Context, string, time.Time, string) error   { return nil }
func (NopJournal) SessionFinalized(context.Context, string, error) error           { return nil }
func (NopJournal) ChunkWritten(context.Context, string, int, string, int64) error  { return nil }
func (NopJournal) ChunkDelivered(context.Context, string, int, error) error        { return nil }
