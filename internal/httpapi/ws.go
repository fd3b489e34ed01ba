package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"spartan-core/internal/bus"
)

// WSHandler streams every bus.Event to a connected subscriber (the
// scheduler publishes one "signal" event each time a detected signal
// opens a position; trade closes and symbol errors are not published),
// mirroring the
// teacher's unauthenticated EventsWSHandler since these are read-only
// engine-internal notifications rather than account-scoped data.
type WSHandler struct {
	bus      *bus.Bus
	upgrader websocket.Upgrader
}

// NewWSHandler constructs a WSHandler that accepts connections from the
// configured origin, or any origin when origin is "*".
func NewWSHandler(b *bus.Bus, origin string) *WSHandler {
	return &WSHandler{
		bus: b,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" || origin == "" {
		return true
	}
	return strings.EqualFold(r.Header.Get("Origin"), origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-sub:
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
