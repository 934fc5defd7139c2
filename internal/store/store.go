// Package store implements the persistence collaborators of the sync
// coordinator: a SQLite store for single-node deployments, a Redis store for
// shared state across daemons, and an in-memory store.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bernardzulu23/phasesync/internal/config"
	"github.com/bernardzulu23/phasesync/internal/phase"
)

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// errUnknownBackend is returned by Open for an unsupported backend name.
var errUnknownBackend = errors.New("store: unknown backend")

// Record is one persisted (user, phase, data type) value.
type Record struct {
	UserID    string        `json:"user_id"`
	Key       phase.Key     `json:"key"`
	Payload   phase.Payload `json:"payload"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Store is the full persistence contract. The coordinator only needs Get and
// Put; List and Close serve the CLI and daemon.
type Store interface {
	Get(ctx context.Context, userID string, key phase.Key) (*phase.Payload, error)
	Put(ctx context.Context, userID string, key phase.Key, p phase.Payload) error
	List(ctx context.Context, userID string) ([]Record, error)
	Close() error
}

// Open constructs the store selected by cfg.Backend.
func Open(ctx context.Context, cfg *config.StoreConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite:
		return NewSQLiteStore(ctx, cfg.Path, logger)
	case BackendRedis:
		return DialRedis(ctx, cfg.RedisURL, logger)
	case BackendPostgres:
		return OpenPostgres(ctx, cfg.PostgresURL, logger)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, cfg.Backend)
	}
}

// sortRecords orders records by phase then data type registry order.
func sortRecords(recs []Record) {
	order := make(map[phase.Key]int)
	for i, k := range phase.Keys() {
		order[k] = i
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return order[recs[i].Key] < order[recs[j].Key]
	})
}
