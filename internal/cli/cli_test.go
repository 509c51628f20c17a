package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harsh-dexter/notera/internal/ledger"
	"github.com/harsh-dexter/notera/internal/logging"
	"github.com/harsh-dexter/notera/internal/session"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCmd(&Dependencies{})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notera.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "notera-capture dev") {
		t.Errorf("Unexpected version output %q", out)
	}
}

func TestSessionsCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	l, err := ledger.Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)
	if err := l.SessionStarted(ctx, "abc123", "/tmp/session_1", started); err != nil {
		t.Fatal(err)
	}
	if err := l.ChunkWritten(ctx, "abc123", 1, "/tmp/session_1/chunk-00001.wav", 441044); err != nil {
		t.Fatal(err)
	}
	if err := l.ChunkDelivered(ctx, "abc123", 1, nil); err != nil {
		t.Fatal(err)
	}
	if err := l.SessionEnded(ctx, "abc123", started.Add(30*time.Second), "stopped"); err != nil {
		t.Fatal(err)
	}
	l.Close()

	cfgPath := writeConfig(t, "storage:\n  ledger_path: \""+filepath.ToSlash(dbPath)+"\"\n")

	out, err := run(t, "sessions", "--config", cfgPath)
	if err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if !strings.Contains(out, "abc123") || !strings.Contains(out, "1 uploaded") {
		t.Errorf("Session missing from output:\n%s", out)
	}

	out, err = run(t, "sessions", "abc123", "--config", cfgPath)
	if err != nil {
		t.Fatalf("sessions abc123 failed: %v", err)
	}
	if !strings.Contains(out, "chunk-00001.wav") {
		t.Errorf("Chunk missing from output:\n%s", out)
	}
}

func TestSessionsCommandLedgerDisabled(t *testing.T) {
	cfgPath := writeConfig(t, "storage:\n  ledger_path: \"\"\n")

	if _, err := run(t, "sessions", "--config", cfgPath); err == nil {
		t.Error("Expected error when the ledger is disabled")
	}
}

func TestMissingExplicitConfig(t *testing.T) {
	if _, err := run(t, "sessions", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a missing config file")
	}
}

func TestSnapshotOrFallsBackOnError(t *testing.T) {
	fallback := session.Snapshot{State: session.StateRecording, SessionID: "abc123", ChunksEmitted: 2}

	failing := func(ctx context.Context) (session.Snapshot, error) {
		return session.Snapshot{}, session.ErrManagerClosed
	}
	if got := snapshotOr(context.Background(), failing, fallback, logging.Nop()); got.ChunksEmitted != 2 || got.SessionID != "abc123" {
		t.Errorf("Expected the fallback snapshot, got %+v", got)
	}

	current := session.Snapshot{State: session.StateRecording, SessionID: "abc123", ChunksEmitted: 7}
	ok := func(ctx context.Context) (session.Snapshot, error) { return current, nil }
	if got := snapshotOr(context.Background(), ok, fallback, logging.Nop()); got.ChunksEmitted != 7 {
		t.Errorf("Expected the current snapshot, got %+v", got)
	}
}
