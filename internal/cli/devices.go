package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/harsh-dexter/notera/internal/output"
	"github.com/harsh-dexter/notera/internal/recorder"
)

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			formatter := output.NewFormatter(cmd.OutOrStdout())

			devices, err := recorder.ListDevices(ctx, goos(), recorder.ExecRunner)
			if err != nil {
				formatter.Warning("Could not enumerate devices: " + err.Error())
			}

			formatter.DeviceList(devices)
			return nil
		},
	}
}
