package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harsh-dexter/notera/internal/metrics"
)

// Runner starts fire-and-forget tasks and keeps count of them so the process
// can drain before exiting.
type Runner struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
	metrics *metrics.Metrics

	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight int
}

// NewRunner creates a runner. m may be nil.
func NewRunner(logger zerolog.Logger, m *metrics.Metrics) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With().Str("component", "background").Logger(),
		metrics: m,
	}
}

// Go runs fn on its own goroutine. A returned error is logged at warn level
// with the given fields; nothing is propagated to the caller.
func (r *Runner) Go(name string, fields map[string]interface{}, fn func(ctx context.Context) error) {
	r.mu.Lock()
	r.inFlight++
	r.mu.Unlock()
	r.wg.Add(1)
	r.metrics.TaskStarted()

	go func() {
		defer r.wg.Done()

		startTime := time.Now()
		err := fn(r.ctx)

		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
		r.metrics.TaskFinished(name, err)

		event := r.logger.Debug()
		msg := "Background task finished"
		if err != nil {
			event = r.logger.Warn().Err(err)
			msg = "Background task failed"
		}
		event.Str("task", name).
			Fields(fields).
			Dur("took", time.Since(startTime)).
			Msg(msg)
	}()
}

// InFlight returns the number of tasks still running
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// Wait blocks until every task has finished or the timeout passes.
// It reports whether the runner drained.
func (r *Runner) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close waits up to timeout for running tasks and then cancels the context
// handed to any that remain.
func (r *Runner) Close(timeout time.Duration) {
	if !r.Wait(timeout) {
		r.logger.Warn().
			Int("in_flight", r.InFlight()).
			Dur("timeout", timeout).
			Msg("Abandoning background tasks still running at shutdown")
	}
	r.cancel()
}
