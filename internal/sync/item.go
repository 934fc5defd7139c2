// Package sync implements the cross-phase sync coordinator: a serialized
// write queue with validation, conflict resolution against the persisted
// value, derived writes into dependent phases, and listener notification.
package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

// Sentinel errors returned by the coordinator.
var (
	// ErrValidation wraps every rejection of a write before it is queued.
	ErrValidation = errors.New("sync: validation failed")
	// ErrClosed is returned once the coordinator has been torn down.
	ErrClosed = errors.New("sync: coordinator closed")
)

// Priority controls where a write enters the queue.
type Priority string

// Queue priorities. High-priority writes are inserted at the head.
const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority accepts "normal", "high" or "" (normal).
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "", PriorityNormal:
		return PriorityNormal, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
	}
}

// SyncItem is one queued write.
type SyncItem struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Key         phase.Key     `json:"key"`
	Payload     phase.Payload `json:"payload"`
	Priority    Priority      `json:"priority"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	CreatedAt   time.Time     `json:"created_at"`

	// Hops counts derivations from the original write; Trail lists the keys
	// the item was derived through, oldest first.
	Hops  int         `json:"hops,omitempty"`
	Trail []phase.Key `json:"trail,omitempty"`
}

// RecordKey renders "{userId}:{phase}:{dataType}", the key used for
// last-sync bookkeeping.
func (it *SyncItem) RecordKey() string {
	return recordKey(it.UserID, it.Key)
}

func recordKey(userID string, k phase.Key) string {
	return userID + ":" + k.String()
}

// Stats is a point-in-time snapshot of the coordinator.
type Stats struct {
	QueueLength    int                  `json:"queue_length"`
	SyncInProgress bool                 `json:"sync_in_progress"`
	LastSync       map[string]time.Time `json:"last_sync"`
	ListenerCount  int                  `json:"listener_count"`
	PendingRetries int                  `json:"pending_retries"`
	FailingRecords map[string]int       `json:"failing_records,omitempty"` // consecutive failures, awaiting retry
	DroppedRecords map[string]int       `json:"dropped_records,omitempty"`
}
