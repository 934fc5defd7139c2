package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/bernardzulu23/phasesync/internal/phase"
)

// Listener is called with every completed item for the key it was
// registered under. Listeners run on the processing goroutine.
type Listener func(SyncItem)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// AddSyncListener registers fn for completed items under (p, dt). Multiple
// listeners per key are supported. The returned ID removes it again.
func (c *Coordinator) AddSyncListener(p phase.Phase, dt phase.DataType, fn Listener) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.addListenerLocked(phase.Key{Phase: p, DataType: dt}, fn)
}

func (c *Coordinator) addListenerLocked(key phase.Key, fn Listener) ListenerID {
	c.nextListener++
	id := c.nextListener
	c.listeners[key] = append(c.listeners[key], listenerEntry{id: id, fn: fn})

	return id
}

// RemoveSyncListener unregisters the listener with id under (p, dt). It
// reports whether a listener was removed.
func (c *Coordinator) RemoveSyncListener(p phase.Phase, dt phase.DataType, id ListenerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := phase.Key{Phase: p, DataType: dt}
	entries := c.listeners[key]

	for i, e := range entries {
		if e.id != id {
			continue
		}

		rest := make([]listenerEntry, 0, len(entries)-1)
		rest = append(rest, entries[:i]...)
		rest = append(rest, entries[i+1:]...)

		if len(rest) == 0 {
			delete(c.listeners, key)
		} else {
			c.listeners[key] = rest
		}

		return true
	}

	return false
}

// subscription guards a Subscribe channel so the listener never sends on it
// after it is closed.
type subscription struct {
	mu     stdsync.Mutex
	closed bool
	ch     chan SyncItem
}

// Subscribe returns a channel receiving every completed item for key until
// ctx ends or the coordinator closes, after which the channel is closed.
// Delivery blocks processing until the subscriber receives the item, so a
// live subscriber sees every item at least once. buffer sets the channel
// capacity.
func (c *Coordinator) Subscribe(ctx context.Context, key phase.Key, buffer int) <-chan SyncItem {
	if buffer < 0 {
		buffer = 0
	}

	sub := &subscription{ch: make(chan SyncItem, buffer)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		close(sub.ch)
		return sub.ch
	}

	id := c.addListenerLocked(key, func(it SyncItem) {
		sub.mu.Lock()
		defer sub.mu.Unlock()

		if sub.closed {
			return
		}

		select {
		case sub.ch <- it:
		case <-ctx.Done():
		case <-c.ctx.Done():
		}
	})

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		select {
		case <-ctx.Done():
		case <-c.ctx.Done():
		}

		c.RemoveSyncListener(key.Phase, key.DataType, id)

		sub.mu.Lock()
		sub.closed = true
		close(sub.ch)
		sub.mu.Unlock()
	}()

	return sub.ch
}

// notify delivers it to every listener on its key. A panicking listener is
// logged and does not affect the others or the item's outcome.
func (c *Coordinator) notify(it *SyncItem) {
	c.mu.Lock()
	entries := append([]listenerEntry(nil), c.listeners[it.Key]...)
	c.mu.Unlock()

	for _, e := range entries {
		c.callListener(e, *it)
	}
}

func (c *Coordinator) callListener(e listenerEntry, it SyncItem) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("sync listener panicked",
				slog.String("key", it.Key.String()),
				slog.Uint64("listener_id", uint64(e.id)),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	e.fn(it)
}
