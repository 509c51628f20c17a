// Command fake-backend serves the live meeting endpoints in memory so the
// capture host can be run end to end without the real backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harsh-dexter/notera/internal/backend/backendtest"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr         string
		saveDir      string
		uploadStatus int
	)

	cmd := &cobra.Command{
		Use:          "fake-backend",
		Short:        "In-memory stand-in for the notera live meeting API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
				With().Timestamp().Logger()

			fake := backendtest.NewServer()
			fake.NextID = func() string { return uuid.NewString() }
			fake.UploadStatus = uploadStatus
			fake.OnUpload = func(up backendtest.Upload) {
				event := logger.Info().
					Str("meeting_id", up.SessionID).
					Int("chunk_index", up.ChunkIndex).
					Str("file", up.FileName).
					Int("size", len(up.Data)).
					Float64("seconds", up.Duration).
					Str("request_id", up.Header.Get("X-Request-ID"))

				if saveDir != "" {
					path := filepath.Join(saveDir, up.SessionID, up.FileName)
					if err := saveChunk(path, up.Data); err != nil {
						logger.Error().Err(err).Str("path", path).Msg("Failed to save chunk")
					} else {
						event = event.Str("saved", path)
					}
				}
				event.Msg("Chunk received")
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           logRequests(logger, fake),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			logger.Info().Str("address", addr).Msg("Fake backend listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			logger.Info().
				Int("meetings", len(fake.Created())).
				Int("chunks", len(fake.Uploads())).
				Int("finalized", len(fake.Finalized())).
				Msg("Fake backend stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7000", "Listen address")
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "Write received chunks under this directory")
	cmd.Flags().IntVar(&uploadStatus, "upload-status", 0, "Reject every chunk upload with this HTTP status")

	return cmd
}

func saveChunk(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func logRequests(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("Request handled")
	})
}
