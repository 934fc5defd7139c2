package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/bernardzulu23/phasesync/internal/phase"
	"github.com/bernardzulu23/phasesync/internal/sync"
)

const eventWriteTimeout = 10 * time.Second

// HandleEvents handles GET /v1/events?key=PHASE_1:gamification. The key
// parameter may repeat. Each completed item for a requested key is written
// to the websocket as one JSON message until either side closes.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	rawKeys := r.URL.Query()["key"]
	if len(rawKeys) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeBadRequest, Description: "at least one key is required"})
		return
	}

	keys := make([]phase.Key, 0, len(rawKeys))

	for _, raw := range rawKeys {
		k, err := phase.ParseKey(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: codeBadRequest, Description: err.Error()})
			return
		}

		keys = append(keys, k)
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	// The client sends nothing; CloseRead ends ctx when it disconnects.
	ctx := conn.CloseRead(r.Context())

	h.logger.Info("event stream opened",
		slog.String("remote", r.RemoteAddr),
		slog.Int("keys", len(keys)),
	)

	items := h.fanIn(ctx, keys)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("event stream closed", slog.String("remote", r.RemoteAddr))
			return
		case it, ok := <-items:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "coordinator closed")
				return
			}

			if err := h.writeEvent(ctx, conn, it); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Warn("event write failed", slog.String("error", err.Error()))
				}

				return
			}
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, conn *websocket.Conn, it sync.SyncItem) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, it)
}

// fanIn subscribes to every key and merges the streams. The merged channel
// closes once every subscription has closed.
func (h *Handler) fanIn(ctx context.Context, keys []phase.Key) <-chan sync.SyncItem {
	out := make(chan sync.SyncItem)

	var wg stdsync.WaitGroup

	for _, k := range keys {
		ch := h.coord.Subscribe(ctx, k, h.buffer)

		wg.Add(1)

		go func() {
			defer wg.Done()

			for it := range ch {
				select {
				case out <- it:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
