package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bernardzulu23/phasesync/internal/config"
	"github.com/bernardzulu23/phasesync/internal/phase"
	"github.com/bernardzulu23/phasesync/internal/store"
)

// Daemon state constants for status reporting.
const (
	daemonStateRunning = "running"
	daemonStateStopped = "stopped"
	daemonStateStale   = "stale pid file"
)

// keyCounter is implemented by stores that can count records per key
// without loading them.
type keyCounter interface {
	CountByKey(ctx context.Context) (map[phase.Key]int, error)
}

// statusOutput is the JSON shape of the status command.
type statusOutput struct {
	ConfigPath string         `json:"config_path"`
	Backend    string         `json:"backend"`
	Daemon     string         `json:"daemon"`
	PID        int            `json:"pid,omitempty"`
	Records    map[string]int `json:"records,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var showConfig bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state, store contents and effective config",
		Long: `Report whether a serve daemon is running, how many records the store
holds per phase and data type (sqlite and postgres), and optionally the effective
configuration after all overrides.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := collectStatus(cmd.Context(), resolvedCfg, resolvedPath, config.DefaultPIDPath())
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}

			printStatus(cmd.OutOrStdout(), out)

			if showConfig {
				fmt.Fprintln(cmd.OutOrStdout())

				return config.RenderEffective(resolvedCfg, resolvedPath, cmd.OutOrStdout())
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showConfig, "config-dump", false, "also print the effective configuration")

	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config, cfgPath, pidPath string) (*statusOutput, error) {
	out := &statusOutput{
		ConfigPath: cfgPath,
		Backend:    cfg.Store.Backend,
	}

	out.Daemon, out.PID = daemonState(pidPath)

	switch cfg.Store.Backend {
	case store.BackendMemory, store.BackendRedis:
		// Nothing persists in memory; redis has no cheap count.
		return out, nil
	case store.BackendSQLite:
		// A missing database file means nothing was ever written; opening
		// it here would create it.
		if _, err := os.Stat(cfg.Store.Path); errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
	}

	logger, _ := buildLogger(os.Stderr)

	st, err := store.Open(ctx, &cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	defer st.Close()

	kc, ok := st.(keyCounter)
	if !ok {
		return out, nil
	}

	counts, err := kc.CountByKey(ctx)
	if err != nil {
		return nil, err
	}

	out.Records = make(map[string]int, len(counts))
	for k, n := range counts {
		out.Records[k.String()] = n
	}

	return out, nil
}

// daemonState reports whether the PID file names a live process.
func daemonState(pidPath string) (string, int) {
	_, pid, err := findDaemon(pidPath)

	switch {
	case err == nil:
		return daemonStateRunning, pid
	case errors.Is(err, errStaleDaemon):
		return daemonStateStale, pid
	default:
		return daemonStateStopped, 0
	}
}

func printStatus(w io.Writer, out *statusOutput) {
	source := out.ConfigPath
	if source == "" {
		source = "(defaults)"
	}

	daemon := out.Daemon
	if out.PID != 0 {
		daemon += " (PID " + strconv.Itoa(out.PID) + ")"
	}

	fmt.Fprintf(w, "Config:  %s\n", source)
	fmt.Fprintf(w, "Store:   %s\n", out.Backend)
	fmt.Fprintf(w, "Daemon:  %s\n", daemon)

	if len(out.Records) == 0 {
		return
	}

	fmt.Fprintln(w)

	rows := make([][]string, 0, len(out.Records))

	for _, k := range phase.Keys() {
		if n, ok := out.Records[k.String()]; ok {
			rows = append(rows, []string{k.String(), strconv.Itoa(n)})
		}
	}

	printTable(w, []string{"RECORD TYPE", "COUNT"}, rows)
}
