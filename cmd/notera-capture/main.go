package main

import (
	"os"

	"github.com/harsh-dexter/notera/internal/cli"
	"github.com/harsh-dexter/notera/internal/output"
)

func main() {
	if err := cli.NewRootCmd(&cli.Dependencies{}).Execute(); err != nil {
		output.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
