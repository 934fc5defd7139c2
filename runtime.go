package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bernardzulu23/phasesync/internal/config"
	"github.com/bernardzulu23/phasesync/internal/store"
	"github.com/bernardzulu23/phasesync/internal/sync"
)

// runtime bundles the store, coordinator and metrics registry that every
// command building on the coordinator needs.
type runtime struct {
	cfg      *config.Config
	store    store.Store
	coord    *sync.Coordinator
	registry *prometheus.Registry
	logger   *slog.Logger
}

// newRuntime opens the configured store and builds a coordinator on it.
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	d, err := cfg.ParseDurations()
	if err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	st, err := store.Open(ctx, &cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	coord, err := sync.NewCoordinator(&sync.CoordinatorConfig{
		Store:          st,
		Logger:         logger,
		Registerer:     reg,
		Interval:       d.Interval,
		MaxAttempts:    cfg.Sync.MaxAttempts,
		RetryBase:      d.RetryBase,
		ConflictWindow: d.ConflictWindow,
		MaxHops:        cfg.Sync.MaxHops,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		store:    st,
		coord:    coord,
		registry: reg,
		logger:   logger,
	}, nil
}

// drain processes the queue and waits for retries to settle.
func (rt *runtime) drain(ctx context.Context) error {
	rt.coord.ProcessSyncQueue(ctx)

	return rt.coord.WaitIdle(ctx)
}

// Close tears down the coordinator, then the store.
func (rt *runtime) Close() error {
	return errors.Join(rt.coord.Close(), rt.store.Close())
}
