package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bernardzulu23/phasesync/internal/config"
	"github.com/bernardzulu23/phasesync/internal/events"
	"github.com/bernardzulu23/phasesync/internal/inbox"
	"github.com/bernardzulu23/phasesync/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator daemon with its HTTP API",
		Long: `Run the coordinator in the foreground: the background drain ticker, the
HTTP API with its websocket event stream and Prometheus metrics, and the
inbox directory watcher when [inbox] dir is set. When [events]
kafka_brokers is set, every completed item is also published to Kafka.

SIGHUP reloads the config file. Only the log level takes effect live;
other changes are logged and apply on the next start. The first SIGINT or
SIGTERM drains and exits; a second one forces exit.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "HTTP listen address (overrides [server] listen)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, level := buildLogger(os.Stderr)

	lock, err := acquirePIDLock(config.DefaultPIDPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx := shutdownContext(cmd.Context(), logger)

	rt, err := newRuntime(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Warn("runtime close error on shutdown", slog.String("error", closeErr.Error()))
		}
	}()

	d, err := resolvedCfg.ParseDurations()
	if err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	ln, err := net.Listen("tcp", resolvedCfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", resolvedCfg.Server.Listen, err)
	}

	handler := server.New(server.Options{
		Coordinator:      rt.coord,
		Records:          rt.store,
		Gatherer:         rt.registry,
		Logger:           logger,
		SubscriberBuffer: resolvedCfg.Sync.SubscriberBuffer,
	})
	srv := server.NewServer(resolvedCfg.Server.Listen, handler.Router())

	if brokers := resolvedCfg.Events.KafkaBrokers; len(brokers) > 0 {
		pub, dialErr := events.Dial(ctx, brokers, resolvedCfg.Events.KafkaTopic, logger)
		if dialErr != nil {
			ln.Close()
			return dialErr
		}

		detach := pub.Attach(rt.coord)

		defer func() {
			detach()

			if closeErr := pub.Close(); closeErr != nil {
				logger.Warn("event publisher close error", slog.String("error", closeErr.Error()))
			}
		}()
	}

	rt.coord.Start(ctx)

	holder := config.NewHolder(resolvedCfg, resolvedPath)

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Serve(gctx, srv, ln, d.ShutdownTimeout, logger)
	})

	if dir := resolvedCfg.Inbox.Dir; dir != "" {
		in := inbox.New(dir, rt.coord, logger)

		g.Go(func() error {
			return in.Run(gctx)
		})
	}

	g.Go(func() error {
		return reloadLoop(gctx, holder, level, sighup, logger)
	})

	statusf("phasesync serving on %s\n", ln.Addr())

	return g.Wait()
}

// reloadLoop re-reads the config file on every SIGHUP until ctx ends.
func reloadLoop(
	ctx context.Context, holder *config.Holder, level *slog.LevelVar,
	sighup <-chan os.Signal, logger *slog.Logger,
) error {
	for {
		select {
		case <-sighup:
			logger.Info("SIGHUP received, reloading config")
			applyReload(holder, level, logger)
		case <-ctx.Done():
			return nil
		}
	}
}

// applyReload swaps in the reloaded config and applies the log level. A bad
// file keeps the current config.
func applyReload(holder *config.Holder, level *slog.LevelVar, logger *slog.Logger) {
	prev, next, err := holder.Reload()
	if err != nil {
		logger.Warn("config reload failed, keeping current state",
			slog.String("path", holder.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	lvl := logLevel(next)
	level.Set(lvl)

	if next.Sync != prev.Sync || next.Store != prev.Store || next.Server != prev.Server || next.Inbox != prev.Inbox ||
		next.Events.KafkaTopic != prev.Events.KafkaTopic ||
		!slices.Equal(next.Events.KafkaBrokers, prev.Events.KafkaBrokers) {
		logger.Warn("config changes outside [logging] apply on next start")
	}

	logger.Info("config reloaded", slog.String("log_level", lvl.String()))
}
