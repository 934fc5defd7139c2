package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

// Redis key layout: one hash per user, one field per phase key.
const (
	recordsKeyPrefix = "phasesync:records:"
	updatedKeyPrefix = "phasesync:updated:"
)

// RedisStore keeps records in Redis so several daemons can share state.
type RedisStore struct {
	client  *redis.Client
	owned   bool // Close also closes the client
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewRedisStore wraps an existing client. The client's lifecycle stays with
// the caller.
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// DialRedis parses url, connects and pings. The returned store owns the
// client.
func DialRedis(ctx context.Context, url string, logger *slog.Logger) (*RedisStore, error) {
	if url == "" {
		return nil, errors.New("store: redis url is empty")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping failed: %w", err)
	}

	logger.Info("redis store connected", slog.String("addr", opts.Addr))

	s := NewRedisStore(client, logger)
	s.owned = true

	return s, nil
}

// Get returns the stored payload or nil if none exists.
func (s *RedisStore) Get(ctx context.Context, userID string, key phase.Key) (*phase.Payload, error) {
	raw, err := s.client.HGet(ctx, recordsKeyPrefix+userID, key.String()).Result()
	if errors.Is(err, redis.Nil) {
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

// Put writes the payload and its update time in one pipeline.
func (s *RedisStore) Put(ctx context.Context, userID string, key phase.Key, p phase.Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encoding %s for %s: %w", key, userID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, recordsKeyPrefix+userID, key.String(), string(raw))
	pipe.HSet(ctx, updatedKeyPrefix+userID, key.String(), s.nowFunc().UnixNano())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: writing %s for %s: %w", key, userID, err)
	}

	return nil
}

// List returns every record stored for userID in registry order.
func (s *RedisStore) List(ctx context.Context, userID string) ([]Record, error) {
	pipe := s.client.Pipeline()
	recCmd := pipe.HGetAll(ctx, recordsKeyPrefix+userID)
	updCmd := pipe.HGetAll(ctx, updatedKeyPrefix+userID)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("store: listing records for %s: %w", userID, err)
	}

	updated := make(map[string]int64)

	for field, v := range updCmd.Val() {
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			updated[field] = ns
		}
	}

	var out []Record

	for field, raw := range recCmd.Val() {
		key, err := phase.ParseKey(field)
		if err != nil {
			s.logger.Warn("skipping record with unregistered key",
				slog.String("user_id", userID),
				slog.String("key", field),
			)

			continue
		}

		p, err := phase.DecodePayload(key, []byte(raw))
		if err != nil {
			return nil, fmt.Errorf("store: decoding %s for %s: %w", key, userID, err)
		}

		out = append(out, Record{
			UserID:    userID,
			Key:       key,
			Payload:   p,
			UpdatedAt: time.Unix(0, updated[field]),
		})
	}

	sortRecords(out)

	return out, nil
}

// Close closes the client if the store created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}

	return s.client.Close()
}
