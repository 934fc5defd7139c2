package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bernardzulu23/phasesync/internal/store"
)

func newShowCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List a user's stored records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger, _ := buildLogger(os.Stderr)

			st, err := store.Open(ctx, &resolvedCfg.Store, logger)
			if err != nil {
				return fmt.Errorf("opening %s store: %w", resolvedCfg.Store.Backend, err)
			}
			defer st.Close()

			recs, err := st.List(ctx, user)
			if err != nil {
				return err
			}

			return printRecords(cmd.OutOrStdout(), user, recs)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user ID")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func printRecords(w io.Writer, user string, recs []store.Record) error {
	if flagJSON {
		if recs == nil {
			recs = []store.Record{}
		}

		return printJSON(w, recs)
	}

	if len(recs) == 0 {
		statusf("No records for %s\n", user)
		return nil
	}

	rows := make([][]string, 0, len(recs))

	for _, r := range recs {
		data, err := json.Marshal(r.Payload.Data)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", r.Key, err)
		}

		rows = append(rows, []string{
			r.Key.String(),
			formatTime(r.Payload.Timestamp),
			formatTime(r.UpdatedAt),
			string(data),
		})
	}

	printTable(w, []string{"KEY", "TIMESTAMP", "UPDATED", "DATA"}, rows)

	return nil
}
