package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/harsh-dexter/notera/internal/app"
	"github.com/harsh-dexter/notera/internal/config"
	"github.com/harsh-dexter/notera/internal/version"
)

// Dependencies are resolved lazily so that commands such as version run
// without a configuration.
type Dependencies struct {
	ConfigPath string

	config *config.Config
}

// Config loads the configuration once
func (d *Dependencies) Config() (*config.Config, error) {
	if d.config != nil {
		return d.config, nil
	}

	cfg, err := config.Load(config.ResolvePath(d.ConfigPath))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	d.config = cfg
	return cfg, nil
}

// App builds the capture host. The caller closes it.
func (d *Dependencies) App() (*app.App, error) {
	cfg, err := d.Config()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "notera-capture",
		Short: "Capture live meeting audio and stream it to notera",
		Long: "notera-capture records audio through an external recorder, cuts it into fixed-length WAV chunks\n" +
			"and uploads each chunk to the notera backend while the meeting is still running.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.PersistentFlags().StringVarP(&deps.ConfigPath, "config", "c", "",
		fmt.Sprintf("Path to configuration file (default %s if present)", config.DefaultPath))

	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewSessionsCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func goos() string {
	return runtime.GOOS
}
