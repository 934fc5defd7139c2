package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

func newForceCmd() *cobra.Command {
	var (
		user      string
		phaseName string
	)

	cmd := &cobra.Command{
		Use:   "force",
		Short: "Force a refresh of a user's records",
		Long: `Queue one high-priority refresh per data type for the user, in every
phase or only --phase, then drain. Refreshes reload stored values, re-run the
cross-phase rules and notify listeners.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger, _ := buildLogger(os.Stderr)

			rt, err := newRuntime(ctx, resolvedCfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.coord.ForceSyncUser(ctx, user, phase.Phase(phaseName)); err != nil {
				return err
			}

			if err := rt.drain(ctx); err != nil {
				return fmt.Errorf("draining queue: %w", err)
			}

			statusf("Refreshed %s\n", user)

			return printStats(cmd.OutOrStdout(), rt.coord.GetSyncStats())
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user ID")
	cmd.Flags().StringVar(&phaseName, "phase", "", "limit the refresh to one phase")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
