package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tubedj/backend/internal/broker"
	"github.com/tubedj/backend/internal/coordinator"
	"github.com/tubedj/backend/internal/logging"
	"github.com/tubedj/backend/internal/middleware"
)

// SocketTable maps live socket ids to their connection cancel funcs, so the
// coordinator can force-close a connection during eviction.
type SocketTable struct {
	mu    sync.Mutex
	conns map[string]context.CancelFunc
}

// NewSocketTable creates an empty table.
func NewSocketTable() *SocketTable {
	return &SocketTable{conns: make(map[string]context.CancelFunc)}
}

// Add registers a connection under its socket id.
func (t *SocketTable) Add(socketID string, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[socketID] = cancel
}

// Remove forgets a connection.
func (t *SocketTable) Remove(socketID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, socketID)
}

// Disconnect cancels the connection bound to socketID, if it is still live.
func (t *SocketTable) Disconnect(socketID string) {
	t.mu.Lock()
	cancel, ok := t.conns[socketID]
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

// EventsHandler serves Server-Sent Events streams carrying room events.
type EventsHandler struct {
	coord   *coordinator.Coordinator
	broker  *broker.Broker
	sockets *SocketTable
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(coord *coordinator.Coordinator, b *broker.Broker, sockets *SocketTable) *EventsHandler {
	return &EventsHandler{coord: coord, broker: b, sockets: sockets}
}

// Stream opens an SSE connection scoped to a room. The connection is the
// caller's live socket: it is bound to their user record on open, and its
// teardown is reported to the coordinator as a disconnect, which may imply
// an implicit leave. A heartbeat comment is sent every 30 seconds to keep
// the connection alive through proxies.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	roomToken := chi.URLParam(r, "roomID")

	member, err := h.coord.IsMember(r.Context(), roomToken, identity.Token)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "room membership required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	socketID := uuid.New().String()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.sockets.Add(socketID, cancel)
	defer h.sockets.Remove(socketID)

	if err := h.coord.BindSocket(ctx, identity.Token, socketID); err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	defer func() {
		// The request context is already dead here; the disconnect,
		// and the implicit leave it may trigger, still has to run.
		if err := h.coord.HandleDisconnect(context.WithoutCancel(ctx), identity.Token, socketID); err != nil {
			logging.LogErrorWithStatus(ctx, 0, "disconnect handling failed", err)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := h.broker.Subscribe(roomToken)
	defer h.broker.Unsubscribe(roomToken, ch)

	fmt.Fprintf(w, "event: connected\ndata: %q\n\n", socketID)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
			flusher.Flush()
			if ev.Name == "room:closed" {
				return
			}
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
