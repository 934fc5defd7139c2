package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

// ProcessSyncQueue drains the queue one item at a time until it is empty or
// ctx ends. Items queued during the pass, including derived writes and
// retries, are processed in the same pass. A call made while another pass
// is running returns immediately.
func (c *Coordinator) ProcessSyncQueue(ctx context.Context) {
	c.mu.Lock()
	if c.inProgress || c.closed {
		c.mu.Unlock()
		return
	}

	c.inProgress = true
	c.mu.Unlock()

	processed := 0

	for {
		if ctx.Err() != nil {
			c.mu.Lock()
			c.inProgress = false
			c.mu.Unlock()

			return
		}

		it := c.dequeue()
		if it == nil {
			break
		}

		c.processItem(ctx, it)
		processed++
	}

	if processed > 0 {
		c.logger.Debug("sync pass complete", slog.Int("items", processed))
	}
}

// dequeue pops the head of the queue. When the queue is empty or the
// coordinator has closed it ends the pass and returns nil, under the same
// lock that enqueuers check inProgress with.
func (c *Coordinator) dequeue() *SyncItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.queue) == 0 {
		c.inProgress = false
		return nil
	}

	it := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.metrics.queueLength.Set(float64(len(c.queue)))

	return it
}

func (c *Coordinator) processItem(ctx context.Context, it *SyncItem) {
	ctx, span := c.tracer.Start(ctx, "sync.item", trace.WithAttributes(
		attribute.String("phasesync.item_id", it.ID),
		attribute.String("phasesync.key", it.Key.String()),
		attribute.String("phasesync.priority", string(it.Priority)),
		attribute.Int("phasesync.attempts", it.Attempts),
		attribute.Bool("phasesync.derived", len(it.Trail) > 0),
	))
	defer span.End()

	start := c.nowFunc()

	err := c.syncItem(ctx, it)

	c.metrics.itemDuration.Observe(c.nowFunc().Sub(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync item failed")
		c.handleFailure(it, err)

		return
	}

	c.metrics.itemsProcessed.Inc()
	c.failures.recordSuccess(it.RecordKey())
}

// syncItem runs the per-item pipeline: load the stored value, resolve a
// conflict, persist, derive writes for dependent keys, notify listeners and
// record the last successful sync. Only load, resolve and persist errors
// fail the item.
func (c *Coordinator) syncItem(ctx context.Context, it *SyncItem) error {
	existing, err := c.store.Get(ctx, it.UserID, it.Key)
	if err != nil {
		return fmt.Errorf("sync: loading %s: %w", it.RecordKey(), err)
	}

	if it.Payload.ForceRefresh && it.Payload.Data == nil {
		c.refresh(it, existing)
		return nil
	}

	payload := it.Payload

	if existing != nil && c.inConflictWindow(existing.Timestamp, payload.Timestamp) {
		payload, err = c.resolve(it, *existing, payload)
		if err != nil {
			return err
		}
	}

	if err := c.store.Put(ctx, it.UserID, it.Key, payload); err != nil {
		return fmt.Errorf("sync: persisting %s: %w", it.RecordKey(), err)
	}

	it.Payload = payload

	c.complete(it)

	return nil
}

// refresh completes a forced-refresh item from the stored value. Nothing is
// written back. With nothing stored, listeners still hear about the item.
func (c *Coordinator) refresh(it *SyncItem, existing *phase.Payload) {
	if existing != nil {
		it.Payload = *existing
		it.Payload.ForceRefresh = true
	}

	c.logger.Debug("sync item refreshed",
		slog.String("id", it.ID),
		slog.String("key", it.RecordKey()),
		slog.Bool("stored", existing != nil),
	)

	c.complete(it)
}

func (c *Coordinator) complete(it *SyncItem) {
	c.propagate(it)
	c.notify(it)

	c.mu.Lock()
	if !c.closed {
		c.lastSync[it.RecordKey()] = c.nowFunc()
	}
	c.mu.Unlock()
}

func (c *Coordinator) inConflictWindow(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}

	return d <= c.conflictWindow
}

func (c *Coordinator) resolve(it *SyncItem, local, remote phase.Payload) (phase.Payload, error) {
	strategy, ok := c.strategies[it.Key]
	if !ok {
		strategy = StrategyTimestamp
	}

	resolved, err := Resolve(strategy, local, remote, c.nowFunc())
	if err != nil {
		return phase.Payload{}, fmt.Errorf("sync: resolving %s: %w", it.RecordKey(), err)
	}

	c.metrics.conflicts.WithLabelValues(string(strategy)).Inc()
	c.logger.Info("sync conflict resolved",
		slog.String("id", it.ID),
		slog.String("key", it.RecordKey()),
		slog.String("strategy", string(strategy)),
	)

	return resolved, nil
}

// propagate queues the derived writes for every rule keyed by it.Key at
// normal priority. A rule whose target is already on the item's derivation
// trail is skipped, and nothing is derived once the item is maxHops deep.
func (c *Coordinator) propagate(it *SyncItem) {
	rules := c.rules[it.Key]
	if len(rules) == 0 || it.Payload.Data == nil {
		return
	}

	if it.Hops >= c.maxHops {
		c.logger.Warn("sync derivation depth reached",
			slog.String("key", it.RecordKey()),
			slog.Int("hops", it.Hops),
		)

		return
	}

	trail := append(slices.Clone(it.Trail), it.Key)

	for _, r := range rules {
		if slices.Contains(trail, r.Target) {
			c.logger.Warn("sync derivation cycle skipped",
				slog.String("source", it.Key.String()),
				slog.String("target", r.Target.String()),
				slog.String("user_id", it.UserID),
			)

			continue
		}

		derived, ok := r.Derive(it.Payload.Data)
		if !ok {
			continue
		}

		_, err := c.queueItem(&SyncItem{
			UserID:   it.UserID,
			Key:      r.Target,
			Payload:  phase.Payload{Data: derived},
			Priority: PriorityNormal,
			Hops:     it.Hops + 1,
			Trail:    trail,
		}, false)
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				c.logger.Warn("sync derived write rejected",
					slog.String("source", it.Key.String()),
					slog.String("target", r.Target.String()),
					slog.String("error", err.Error()),
				)
			}

			continue
		}

		c.metrics.propagations.Inc()
	}
}

// handleFailure counts the attempt and either schedules a delayed
// re-insertion or drops the item once attempts are exhausted.
func (c *Coordinator) handleFailure(it *SyncItem, err error) {
	it.Attempts++
	c.metrics.itemsFailed.Inc()
	consecutive := c.failures.recordFailure(it.RecordKey(), err.Error())

	if it.Attempts >= it.MaxAttempts {
		c.metrics.itemsDropped.Inc()
		c.failures.recordDrop(it.RecordKey())
		c.logger.Error("sync item dropped",
			slog.String("id", it.ID),
			slog.String("key", it.RecordKey()),
			slog.Int("attempts", it.Attempts),
			slog.String("error", err.Error()),
		)

		return
	}

	delay := c.retryBase << it.Attempts

	c.logger.Warn("sync item failed, retrying",
		slog.String("id", it.ID),
		slog.String("key", it.RecordKey()),
		slog.Int("attempt", it.Attempts),
		slog.Int("consecutive_failures", consecutive),
		slog.Duration("backoff", delay),
		slog.String("error", err.Error()),
	)

	c.scheduleRetry(it, delay)
}

// scheduleRetry arms a tracked timer that re-inserts it after delay. Close
// stops every tracked timer.
func (c *Coordinator) scheduleRetry(it *SyncItem, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	var t *time.Timer
	t = c.afterFunc(delay, func() { c.requeue(t, it) })
	c.retries[t] = struct{}{}
}

// requeue appends a retried item to the tail and starts a drain when none
// is running.
func (c *Coordinator) requeue(t *time.Timer, it *SyncItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.retries[t]; !ok {
		return
	}

	delete(c.retries, t)

	if c.closed {
		return
	}

	c.queue = append(c.queue, it)
	c.metrics.queueLength.Set(float64(len(c.queue)))

	if !c.inProgress {
		c.startDrainLocked()
	}
}
