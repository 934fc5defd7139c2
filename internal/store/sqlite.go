package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

// SQL statements for record operations.
const (
	sqlGetRecord = `SELECT payload FROM records
		WHERE user_id = ? AND phase = ? AND data_type = ?`

	sqlListRecords = `SELECT phase, data_type, payload, updated_at FROM records
		WHERE user_id = ?`

	sqlUpsertRecord = `INSERT INTO records
		(user_id, phase, data_type, payload, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, phase, data_type) DO UPDATE SET
		 payload = excluded.payload,
		 timestamp = excluded.timestamp,
		 updated_at = excluded.updated_at`

	sqlCountByKey = `SELECT phase, data_type, COUNT(*) FROM records
		GROUP BY phase, data_type`
)

const dbDirPermissions = 0o700

// SQLiteStore is the sole writer to the phasesync database.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// NewSQLiteStore opens the SQLite database at dbPath, runs migrations, and
// returns a ready-to-use store. The database uses WAL mode with
// synchronous=FULL for crash-safe durability.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("store: sqlite path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dbDirPermissions); err != nil {
		return nil, fmt.Errorf("store: creating database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, goose.DialectSQLite3, "sqlite", logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store initialized", slog.String("db_path", dbPath))

	return &SQLiteStore{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Get returns the stored payload or nil if none exists.
func (s *SQLiteStore) Get(ctx context.Context, userID string, key phase.Key) (*phase.Payload, error) {
	var raw string

	err := s.db.QueryRowContext(ctx, sqlGetRecord, userID, string(key.Phase), string(key.DataType)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading %s for %s: %w", key, userID, err)
	}

	p, err := phase.DecodePayload(key, []byte(raw))
	if err != nil {
		return nil, fmt.Errorf("store: decoding %s for %s: %w", key, userID, err)
	}

	return &p, nil
}

// Put upserts p for (userID, key).
func (s *SQLiteStore) Put(ctx context.Context, userID string, key phase.Key, p phase.Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encoding %s for %s: %w", key, userID, err)
	}

	_, err = s.db.ExecContext(ctx, sqlUpsertRecord,
		userID, string(key.Phase), string(key.DataType), string(raw),
		p.Timestamp.UnixNano(), s.nowFunc().UnixNano(),
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

// List returns every record stored for userID in registry order. Rows whose
// key is no longer registered are skipped with a warning.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, sqlListRecords, userID)
	if err != nil {
		return nil, fmt.Errorf("store: listing records for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Record

	for rows.Next() {
		var (
			p, dt, raw string
			updatedAt  int64
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

		payload, err := phase.DecodePayload(key, []byte(raw))
		if err != nil {
			return nil, fmt.Errorf("store: decoding %s for %s: %w", key, userID, err)
		}

		out = append(out, Record{
			UserID:    userID,
			Key:       key,
			Payload:   payload,
			UpdatedAt: time.Unix(0, updatedAt),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating record rows: %w", err)
	}

	sortRecords(out)

	return out, nil
}

// CountByKey returns the number of stored records per key across all users.
func (s *SQLiteStore) CountByKey(ctx context.Context) (map[phase.Key]int, error) {
	rows, err := s.db.QueryContext(ctx, sqlCountByKey)
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

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
