// Package progress pushes job events and slot transitions to UI
// surfaces over websockets. Any number of surfaces may be open at once;
// one hub subscribes to the bus and fans envelopes out to each of them.
package progress

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/gorilla/websocket"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/jobs"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/nativemsg"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/protocol"
	"github.com/smartvideo/ytdlp-bridge/bridge/orchestrator"
)

var upgrader = websocket.Upgrader{
	// surfaces are local pages/extensions with arbitrary origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope distinguishes the two payload kinds on the wire.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub holds the bus subscriptions and the set of open surfaces. Each
// connection owns a keyed buffered feed, so detaching one surface never
// affects another.
type Hub struct {
	mu    sync.Mutex
	next  int
	feeds map[int]chan envelope
}

func NewHub(bus EventBus.Bus) *Hub {
	h := &Hub{feeds: make(map[int]chan envelope)}

	// transactional keeps delivery order per topic
	bus.SubscribeAsync(nativemsg.EventTopic, func(msg protocol.Message) {
		h.broadcast(envelope{Type: "event", Data: msg})
	}, true)
	bus.SubscribeAsync(orchestrator.SlotTopic, func(snap jobs.Snapshot) {
		h.broadcast(envelope{Type: "slot", Data: snap})
	}, true)

	return h
}

func (h *Hub) attach() (int, chan envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	feed := make(chan envelope, 16)
	h.feeds[h.next] = feed
	return h.next, feed
}

func (h *Hub) detach(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if feed, ok := h.feeds[id]; ok {
		delete(h.feeds, id)
		close(feed)
	}
}

// broadcast never blocks: a surface that cannot keep up loses events
// rather than stalling the bus for everyone else.
func (h *Hub) broadcast(e envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, feed := range h.feeds {
		select {
		case feed <- e:
		default:
		}
	}
}

// WebSocket upgrades the request and streams the hub's envelopes until
// the peer goes away.
func WebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", slog.Any("err", err))
			return
		}

		id, feed := hub.attach()
		defer func() {
			hub.detach(id)
			conn.Close()
		}()

		go func() {
			for e := range feed {
				if err := conn.WriteJSON(e); err != nil {
					return
				}
			}
		}()

		// drain control frames and detect disconnection
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
