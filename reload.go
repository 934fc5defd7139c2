package main

import (
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bernardzulu23/phasesync/internal/config"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask a running serve daemon to reload its config",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := signalDaemon(config.DefaultPIDPath(), syscall.SIGHUP); err != nil {
				return err
			}

			statusf("Notified running daemon to reload config\n")

			return nil
		},
	}
}
