package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harsh-dexter/notera/internal/output"
	"github.com/harsh-dexter/notera/internal/session"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one live meeting in the foreground",
		Long:  "Start a live meeting, upload chunks while recording and finalize it on Ctrl+C\n(or after --duration).",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())

			a, err := deps.App()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ended := make(chan session.SessionStatus, 1)
			unsubscribe := a.Sessions.Subscribe(session.KindStatus, func(ev session.Event) {
				select {
				case ended <- ev.(session.SessionStatus):
				default:
				}
			})
			defer unsubscribe()

			if err := a.Sessions.Start(ctx); err != nil {
				return err
			}

			snap, err := a.Sessions.Status(ctx)
			if err != nil {
				return err
			}
			formatter.RecordingStarted(snap.SessionID, snap.Dir)

			var timeout <-chan time.Time
			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				timeout = timer.C
			}

			select {
			case st := <-ended:
				formatter.RecordingFailed(st.Message)
				drain(a.Tasks.InFlight(), formatter)
				return errors.New("recording ended unexpectedly")
			case <-ctx.Done():
			case <-timeout:
			}

			// Chunk count before the stop clears the session.
			final := snapshotOr(cmd.Context(), a.Sessions.Status, snap, a.Logger)
			if err := a.Sessions.Stop(); err != nil {
				return err
			}

			startedAt := time.Now()
			if snap.StartedAt != nil {
				startedAt = *snap.StartedAt
			}
			formatter.RecordingStopped(time.Since(startedAt), final.ChunksEmitted)
			drain(a.Tasks.InFlight(), formatter)
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop automatically after this long (e.g. 30m)")

	return cmd
}

func drain(inFlight int, formatter *output.Formatter) {
	if inFlight > 0 {
		formatter.Draining(inFlight)
	}
}

// snapshotOr returns the current snapshot, or fallback when it cannot be read
func snapshotOr(ctx context.Context, status func(context.Context) (session.Snapshot, error), fallback session.Snapshot, logger zerolog.Logger) session.Snapshot {
	snap, err := status(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read recording status before stop")
		return fallback
	}
	return snap
}
