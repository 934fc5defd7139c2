package sync

import (
	"log/slog"
	"maps"
	stdsync "sync"
	"time"
)

// Repeated-drop reporting constants.
const (
	dropWarnThreshold = 3                // warn when a record key drops this many times
	failureCooldown   = 30 * time.Minute // forget failures older than this
)

// failureRecord tracks consecutive failed attempts for a single record key.
type failureRecord struct {
	count   int
	lastErr string
	lastAt  time.Time
}

// failureTracker keeps per-record-key failure and drop counts for stats.
// Thread-safe. Success or a drop clears the consecutive failure record;
// drop counts are kept for the life of the coordinator.
type failureTracker struct {
	mu      stdsync.Mutex
	records map[string]*failureRecord
	drops   map[string]int
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for testing
}

func newFailureTracker(logger *slog.Logger) *failureTracker {
	return &failureTracker{
		records: make(map[string]*failureRecord),
		drops:   make(map[string]int),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// recordFailure increments the failure counter for key and returns it.
func (ft *failureTracker) recordFailure(key, errMsg string) int {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	rec, ok := ft.records[key]
	if !ok {
		rec = &failureRecord{}
		ft.records[key] = rec
	}

	// Reset if the previous failure is older than the cooldown.
	if ft.nowFunc().Sub(rec.lastAt) > failureCooldown {
		rec.count = 0
	}

	rec.count++
	rec.lastErr = errMsg
	rec.lastAt = ft.nowFunc()

	return rec.count
}

// recordDrop counts an item dropped for key after exhausting its attempts.
func (ft *failureTracker) recordDrop(key string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.drops[key]++

	if ft.drops[key] == dropWarnThreshold {
		lastErr := ""
		if rec, ok := ft.records[key]; ok {
			lastErr = rec.lastErr
		}

		ft.logger.Warn("record key dropping repeatedly",
			slog.String("key", key),
			slog.Int("drops", ft.drops[key]),
			slog.String("last_error", lastErr),
		)
	}

	delete(ft.records, key)
}

// recordSuccess clears the failure record for key.
func (ft *failureTracker) recordSuccess(key string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	delete(ft.records, key)
}

// snapshot copies the consecutive failure counts still inside the cooldown
// and the drop counts. Either map is nil when empty.
func (ft *failureTracker) snapshot() (failing, dropped map[string]int) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	now := ft.nowFunc()

	for k, rec := range ft.records {
		if now.Sub(rec.lastAt) > failureCooldown {
			continue
		}

		if failing == nil {
			failing = make(map[string]int)
		}

		failing[k] = rec.count
	}

	if len(ft.drops) > 0 {
		dropped = maps.Clone(ft.drops)
	}

	return failing, dropped
}
