package app

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/harsh-dexter/notera/internal/backend/backendtest"
	"github.com/harsh-dexter/notera/internal/config"
	"github.com/harsh-dexter/notera/internal/session"
)

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Backend.BaseURL = backendURL
	cfg.Audio.SampleRate = 8000
	cfg.Audio.ChunkDuration = 1
	cfg.Storage.TempRoot = filepath.Join(dir, "chunks")
	cfg.Storage.LedgerPath = filepath.Join(dir, "ledger.db")
	cfg.Logging.Output = "stderr"
	cfg.Logging.Level = "error"
	cfg.Shutdown.DrainTimeout = 5
	return cfg
}

func TestAppRecordsWithExternalRecorder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell as the recorder")
	}

	fake := backendtest.NewServer()
	fake.NextID = func() string { return "abc123" }
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Recorder.Binary = "sh"
	cfg.Recorder.Args = []string{"-c", "head -c 20000 /dev/zero; exec sleep 30"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid test config: %v", err)
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	statuses := make(chan session.SessionStatus, 4)
	a.Sessions.Subscribe(session.KindStatus, func(ev session.Event) {
		statuses <- ev.(session.SessionStatus)
	})

	if err := a.Sessions.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !fake.WaitFor(5*time.Second, func() bool { return len(fake.Uploads()) == 1 }) {
		t.Fatalf("Expected one uploaded chunk, got %d", len(fake.Uploads()))
	}
	up := fake.Uploads()[0]
	if up.ChunkIndex != 1 || len(up.Data) != 16044 {
		t.Errorf("Unexpected upload: index=%d size=%d", up.ChunkIndex, len(up.Data))
	}

	if err := a.Sessions.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case st := <-statuses:
		if st.Status != session.StatusStopped {
			t.Errorf("Expected stopped status, got %+v", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No status event after stop")
	}

	// Close drains the finalize task.
	a.Close()

	if got := fake.Finalized(); len(got) != 1 || got[0] != "abc123" {
		t.Errorf("Expected abc123 finalized, got %v", got)
	}
}

func TestAppLedgerRecordsDelivery(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell as the recorder")
	}

	fake := backendtest.NewServer()
	fake.NextID = func() string { return "abc123" }
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Recorder.Binary = "sh"
	cfg.Recorder.Args = []string{"-c", "head -c 32000 /dev/zero; exec sleep 30"}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if err := a.Sessions.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !fake.WaitFor(5*time.Second, func() bool { return len(fake.Uploads()) == 2 }) {
		t.Fatalf("Expected two uploaded chunks, got %d", len(fake.Uploads()))
	}
	if err := a.Sessions.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !a.Tasks.Wait(5 * time.Second) {
		t.Fatal("Background tasks did not drain")
	}

	sessions, err := a.Ledger.ListSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.ID != "abc123" || s.Chunks != 2 || s.Uploaded != 2 || s.EndReason != "stopped" {
		t.Errorf("Unexpected ledger summary %+v", s)
	}
	if s.FinalizeStatus != "finalized" {
		t.Errorf("Expected finalized, got %q", s.FinalizeStatus)
	}
}

func TestNewRejectsUnsupportedFormat(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Audio.BitDepth = 24

	if _, err := New(cfg); err == nil {
		t.Error("Expected error for an unsupported audio format")
	}
}
