package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harsh-dexter/notera/internal/audio"
	"github.com/harsh-dexter/notera/internal/backend"
	"github.com/harsh-dexter/notera/internal/logging"
	"github.com/harsh-dexter/notera/internal/output"
	"github.com/harsh-dexter/notera/internal/recorder"
	"github.com/harsh-dexter/notera/internal/version"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(cmd.OutOrStdout())
			ok := true

			cfg, err := deps.Config()
			if err != nil {
				f.SetupCheck("Configuration", false, err.Error())
				return nil
			}
			f.SetupCheck("Configuration", true, "valid")

			spec, err := recorder.BuildSpec(goos(), recorder.Options{
				Binary:       cfg.Recorder.Binary,
				Args:         cfg.Recorder.Args,
				Device:       cfg.Recorder.Device,
				OutputFormat: cfg.Recorder.OutputFormat,
			}, audio.Format{
				SampleRate:    cfg.Audio.SampleRate,
				Channels:      cfg.Audio.Channels,
				BitsPerSample: cfg.Audio.BitDepth,
			})
			if err != nil {
				f.SetupCheck("Recorder", false, err.Error())
				ok = false
			} else if path, err := recorder.LookPath(spec); err != nil {
				f.SetupCheck("Recorder", false, spec.Binary+" not found on PATH")
				ok = false
			} else {
				f.SetupCheck("Recorder", true, path)
			}

			if err := os.MkdirAll(cfg.Storage.TempRoot, 0755); err != nil {
				f.SetupCheck("Chunk directory", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Chunk directory", true, cfg.Storage.TempRoot)
			}

			client, err := backend.NewClient(backend.Config{
				BaseURL:   cfg.Backend.BaseURL,
				APIKey:    cfg.Backend.APIKey,
				Timeout:   5 * time.Second,
				UserAgent: version.UserAgent(),
			}, logging.Nop())
			if err == nil {
				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				err = client.Ping(ctx)
				cancel()
			}
			if err != nil {
				f.SetupCheck("Backend", false, err.Error())
				ok = false
			} else {
				f.SetupCheck("Backend", true, cfg.Backend.BaseURL)
			}

			if cfg.Backend.APIKey != "" {
				f.SetupCheck("API key", true, "configured")
			} else {
				f.SetupCheck("API key", true, "not set (requests are sent without Authorization)")
			}

			if ok {
				f.Success("\nAll prerequisites met. Ready to record!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}
