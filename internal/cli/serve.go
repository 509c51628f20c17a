package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harsh-dexter/notera/internal/output"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the capture host with its local control API",
		Long:  "Run the capture host. Recording is started and stopped through the HTTP control API;\nsession events are streamed on /events.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := deps.App()
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.Config.HTTP.Enabled {
				return errors.New("http is disabled in the configuration; use 'record' instead")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			httpServer := a.NewHTTPServer()
			if err := httpServer.Start(); err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Serving(a.Config.HTTP.ListenAddress())

			<-ctx.Done()
			a.Logger.Info().Msg("Received shutdown signal")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				a.Logger.Error().Err(err).Msg("Error stopping HTTP server")
			}

			// a.Close stops any active session and drains uploads.
			return nil
		},
	}
}
