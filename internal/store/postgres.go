package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

// SQL statements for the postgres backend. The schema matches the sqlite one
// with JSONB payloads and TIMESTAMPTZ columns.
const (
	pgGetRecord = `SELECT payload FROM records
		WHERE user_id = $1 AND phase = $2 AND data_type = $3`

	pgListRecords = `SELECT phase, data_type, payload, updated_at FROM records
		WHERE user_id = $1`

	pgUpsertRecord = `INSERT INTO records
		(user_id, phase, data_type, payload, timestamp, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		ON CONFLICT (user_id, phase, data_type) DO UPDATE SET
			payload = EXCLUDED.payload,
			timestamp = EXCLUDED.timestamp,
			updated_at = EXCLUDED.updated_at`

	pgCountByKey = `SELECT phase, data_type, COUNT(*) FROM records
		GROUP BY phase, data_type`
)

// PostgresStore keeps records in PostgreSQL so several daemons can share
// durable state.
type PostgresStore struct {
	db      *sql.DB
	owned   bool // Close also closes db
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewPostgresStore wraps an open database whose schema is already migrated.
// The handle's lifecycle stays with the caller.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// OpenPostgres connects to url, pings, and applies pending migrations. The
// returned store owns the connection pool.
func OpenPostgres(ctx context.Context, url string, logger *slog.Logger) (*PostgresStore, error) {
	if url == "" {
		return nil, errors.New("store: postgres url is empty")
	}

	connector, err := pq.NewConnector(url)
	if err != nil {
		return nil, fmt.Errorf("store: parsing postgres url: %w", err)
	}

	db := sql.OpenDB(connector)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: postgres ping failed: %w", err)
	}

	if err := runMigrations(ctx, db, goose.DialectPostgres, "postgres", logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("postgres store connected")

	s := NewPostgresStore(db, logger)
	s.owned = true

	return s, nil
}

// Get returns the stored payload or nil if none exists.
func (s *PostgresStore) Get(ctx context.Context, userID string, key phase.Key) (*phase.Payload, error) {
	var raw []byte

	err := s.db.QueryRowContext(ctx, pgGetRecord, userID, string(key.Phase), string(key.DataType)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading %s for %s: %w", key, userID, err)
	}

	p, err := phase.DecodePayload(key, raw)
	if err != nil {
		return nil, fmt.Errorf("store: decoding %s for %s: %w", key, userID, err)
	}

	return &p, nil
}

// Put upserts p for (userID, key).
func (s *PostgresStore) Put(ctx context.Context, userID string, key phase.Key, p phase.Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encoding %s for %s: %w", key, userID, err)
	}

	_, err = s.db.ExecContext(ctx, pgUpsertRecord,
		userID, string(key.Phase), string(key.DataType), string(raw),
		p.Timestamp.UTC(), s.nowFunc().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: writing %s for %s: %w", key, userID, err)
	}

	s.logger.Debug("record stored",
		slog.String("user_id", userID),
		slog.String("key", key.String()),
	)

	return nil
}

// List returns every record stored for userID in registry order.
func (s *PostgresStore) List(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, pgListRecords, userID)
	if err != nil {
		return nil, fmt.Errorf("store: listing records for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Record

	for rows.Next() {
		var (
			p, dt     string
			raw       []byte
			updatedAt time.Time
		)

		if err := rows.Scan(&p, &dt, &raw, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning record row: %w", err)
		}

		key, err := phase.NewKey(phase.Phase(p), phase.DataType(dt))
		if err != nil {
			s.logger.Warn("skipping record with unregistered key",
				slog.String("user_id", userID),
				slog.String("phase", p),
				slog.String("data_type", dt),
			)

			continue
		}

		payload, err := phase.DecodePayload(key, raw)
		if err != nil {
			return nil, fmt.Errorf("store: decoding %s for %s: %w", key, userID, err)
		}

		out = append(out, Record{
			UserID:    userID,
			Key:       key,
			Payload:   payload,
			UpdatedAt: updatedAt,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating record rows: %w", err)
	}

	sortRecords(out)

	return out, nil
}

// CountByKey returns the number of stored records per key across all users.
func (s *PostgresStore) CountByKey(ctx context.Context) (map[phase.Key]int, error) {
	rows, err := s.db.QueryContext(ctx, pgCountByKey)
	if err != nil {
		return nil, fmt.Errorf("store: counting records: %w", err)
	}
	defer rows.Close()

	out := make(map[phase.Key]int)

	for rows.Next() {
		var (
			p, dt string
			n     int
		)

		if err := rows.Scan(&p, &dt, &n); err != nil {
			return nil, fmt.Errorf("store: scanning count row: %w", err)
		}

		out[phase.Key{Phase: phase.Phase(p), DataType: phase.DataType(dt)}] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating count rows: %w", err)
	}

	return out, nil
}

// Close closes the connection pool if the store owns it.
func (s *PostgresStore) Close() error {
	if !s.owned {
		return nil
	}

	return s.db.Close()
}
