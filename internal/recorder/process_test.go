package recorder

import (
	"context"
	"io"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("Requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecLauncherReadsStdoutAndExitCode(t *testing.T) {
	requireShell(t)

	launcher := NewExecLauncher(time.Second)
	proc, err := launcher.Launch(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", "printf 'abcdef'; echo oops >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	out, err := io.ReadAll(proc.Stdout())
	if err != nil {
		t.Fatalf("Reading stdout failed: %v", err)
	}
	proc.Stdout().Close()
	if string(out) != "abcdef" {
		t.Errorf("Expected stdout abcdef, got %q", out)
	}

	errOut, _ := io.ReadAll(proc.Stderr())
	proc.Stderr().Close()
	if string(errOut) != "oops\n" {
		t.Errorf("Expected stderr oops, got %q", errOut)
	}

	code, err := proc.Wait()
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if code != 3 {
		t.Errorf("Expected exit code 3, got %d", code)
	}
}

func TestExecLauncherTerminate(t *testing.T) {
	requireShell(t)

	launcher := NewExecLauncher(500 * time.Millisecond)
	proc, err := launcher.Launch(context.Background(), Spec{
		Binary: "sh",
		Args:   []string{"-c", "exec sleep 30"},
	})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	defer proc.Stdout().Close()
	defer proc.Stderr().Close()

	if err := proc.Terminate(); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		proc.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not exit after Terminate")
	}

	// Terminating an exited process is a no-op
	if err := proc.Terminate(); err != nil {
		t.Errorf("Second Terminate returned error: %v", err)
	}
}

func TestExecLauncherMissingBinary(t *testing.T) {
	launcher := NewExecLauncher(time.Second)
	if _, err := launcher.Launch(context.Background(), Spec{Binary: "notera-definitely-missing-recorder"}); err == nil {
		t.Error("Expected error for missing binary")
	}
	if _, err := launcher.Launch(context.Background(), Spec{}); err == nil {
		t.Error("Expected error for empty binary")
	}
}
