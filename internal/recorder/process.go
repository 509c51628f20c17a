package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"
)

// Process is a running recorder
type Process interface {
	// Stdout carries the PCM stream. The reader is closed by the consumer.
	Stdout() io.ReadCloser
	// Stderr carries diagnostics. The reader is closed by the consumer.
	Stderr() io.ReadCloser
	Pid() int
	// Terminate asks the recorder to stop without waiting for it to exit.
	Terminate() error
	// Wait blocks until the recorder exits and returns its exit code
	// (-1 when it was killed by a signal).
	Wait() (int, error)
}

// Launcher starts recorder processes
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Process, error)
}

// ExecLauncher starts recorders as operating system processes
type ExecLauncher struct {
	// StopTimeout is how long Terminate waits after SIGTERM before killing.
	StopTimeout time.Duration
}

// NewExecLauncher creates a launcher with the given kill grace period
func NewExecLauncher(stopTimeout time.Duration) *ExecLauncher {
	if stopTimeout <= 0 {
		stopTimeout = 3 * time.Second
	}
	return &ExecLauncher{StopTimeout: stopTimeout}
}

// Launch starts spec. The child is not bound to ctx: it lives until
// Terminate is called or it exits on its own.
func (l *ExecLauncher) Launch(ctx context.Context, spec Spec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Binary == "" {
		return nil, errors.New("recorder binary not specified")
	}

	// os.Pipe instead of cmd.StdoutPipe: exec closes its own pipes in Wait,
	// which would race with the reader draining the last bytes.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			f.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", spec.Binary, err)
	}

	// The child holds its own copies now.
	stdoutW.Close()
	stderrW.Close()

	p := &execProcess{
		cmd:         cmd,
		stdout:      stdoutR,
		stderr:      stderrR,
		stopTimeout: l.StopTimeout,
		done:        make(chan struct{}),
	}
	go p.wait()

	return p, nil
}

type execProcess struct {
	cmd         *exec.Cmd
	stdout      *os.File
	stderr      *os.File
	stopTimeout time.Duration

	done     chan struct{}
	exitCode int
	waitErr  error

	terminateOnce sync.Once
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	p.exitCode = p.cmd.ProcessState.ExitCode()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A non-zero exit is reported through the code.
		err = nil
	}
	p.waitErr = err
	close(p.done)
}

func (p *execProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *execProcess) Stderr() io.ReadCloser { return p.stderr }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }

func (p *execProcess) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.waitErr
}

func (p *execProcess) Terminate() error {
	var err error
	p.terminateOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if runtime.GOOS == "windows" {
			err = p.cmd.Process.Kill()
			return
		}

		if sigErr := p.cmd.Process.Signal(syscall.SIGTERM); sigErr != nil {
			if errors.Is(sigErr, os.ErrProcessDone) {
				return
			}
			err = p.cmd.Process.Kill()
			return
		}

		go func() {
			select {
			case <-p.done:
			case <-time.After(p.stopTimeout):
				_ = p.cmd.Process.Kill()
			}
		}()
	})
	return err
}

// LookPath resolves the recorder binary on PATH
func LookPath(spec Spec) (string, error) {
	return exec.LookPath(spec.Binary)
}
