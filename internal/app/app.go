package app

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/harsh-dexter/notera/internal/audio"
	"github.com/harsh-dexter/notera/internal/backend"
	"github.com/harsh-dexter/notera/internal/background"
	"github.com/harsh-dexter/notera/internal/config"
	"github.com/harsh-dexter/notera/internal/ledger"
	"github.com/harsh-dexter/notera/internal/logging"
	"github.com/harsh-dexter/notera/internal/metrics"
	"github.com/harsh-dexter/notera/internal/recorder"
	"github.com/harsh-dexter/notera/internal/server"
	"github.com/harsh-dexter/notera/internal/session"
	"github.com/harsh-dexter/notera/internal/version"
)

// App holds the wired capture host
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Backend  *backend.Client
	Tasks    *background.Runner
	Ledger   *ledger.Ledger // nil when storage.ledger_path is empty
	Recorder recorder.Spec
	Sessions *session.Manager

	logCloser io.Closer
}

// New builds every component from cfg. Nothing is started except the
// session manager's event loop.
func New(cfg *config.Config) (*App, error) {
	logger, logCloser := logging.New(cfg.Logging)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		logCloser: logCloser,
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewMetrics(a.Registry)

	client, err := backend.NewClient(backend.Config{
		BaseURL:              cfg.Backend.BaseURL,
		APIKey:               cfg.Backend.APIKey,
		Timeout:              cfg.Backend.GetTimeoutDuration(),
		MaxConcurrentUploads: cfg.Backend.MaxConcurrentUploads,
		UserAgent:            version.UserAgent(),
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating backend client: %w", err)
	}
	a.Backend = client

	format := audio.Format{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		BitsPerSample: cfg.Audio.BitDepth,
	}

	spec, err := recorder.BuildSpec(runtime.GOOS, recorder.Options{
		Binary:       cfg.Recorder.Binary,
		Args:         cfg.Recorder.Args,
		Device:       cfg.Recorder.Device,
		OutputFormat: cfg.Recorder.OutputFormat,
	}, format)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("resolving recorder: %w", err)
	}
	a.Recorder = spec

	var journal session.Journal
	if cfg.Storage.LedgerPath != "" {
		l, err := ledger.Open(cfg.Storage.LedgerPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		a.Ledger = l
		journal = l
	}

	a.Tasks = background.NewRunner(logger, a.Metrics)

	manager, err := session.NewManager(logger, session.Config{
		TempRoot:          cfg.Storage.TempRoot,
		Format:            format,
		ChunkDuration:     cfg.Audio.GetChunkDuration(),
		FlushPartialChunk: cfg.Audio.FlushPartialChunk,
		Recorder:          spec,
	}, session.Dependencies{
		Backend:  client,
		Launcher: recorder.NewExecLauncher(cfg.Recorder.GetStopTimeoutDuration()),
		Tasks:    a.Tasks,
		Journal:  journal,
		Metrics:  a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating session manager: %w", err)
	}
	a.Sessions = manager

	logger.Info().
		Str("version", version.Version).
		Str("backend", client.BaseURL()).
		Str("recorder", spec.String()).
		Int("chunk_bytes", manager.ChunkSize()).
		Bool("ledger", a.Ledger != nil).
		Msg("Capture host initialized")

	return a, nil
}

// Devices lists capture devices for the current platform
func (a *App) Devices(ctx context.Context) ([]recorder.Device, error) {
	return recorder.ListDevices(ctx, runtime.GOOS, recorder.ExecRunner)
}

// NewHTTPServer builds the control API on top of the app's components
func (a *App) NewHTTPServer() *server.HTTPServer {
	deps := server.Dependencies{
		Recording: a.Sessions,
		Devices:   a.Devices,
		Backend:   a.Backend,
		Tasks:     a.Tasks,
		Metrics:   a.Metrics,
		Gatherer:  a.Registry,
	}
	if a.Ledger != nil {
		deps.History = a.Ledger
	}
	return server.NewHTTPServer(a.Config, a.Logger, deps)
}

// Close stops any active session, waits up to the drain timeout for uploads
// and finalize calls, then releases resources.
func (a *App) Close() {
	if a.Sessions != nil {
		a.Sessions.Close()
	}

	if a.Tasks != nil {
		drain := a.Config.Shutdown.GetDrainTimeoutDuration()
		if n := a.Tasks.InFlight(); n > 0 {
			a.Logger.Info().Int("in_flight", n).Dur("timeout", drain).Msg("Waiting for background tasks")
		}
		a.Tasks.Close(drain)
	}

	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close ledger")
		}
	}

	if a.Backend != nil {
		a.Backend.Close()
	}

	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
