package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/AnshRaj112/daily-journal-backend/internal/notify"
)

// EventsHandler streams a user's entry and summary events over a
// WebSocket. Events are fed by the local hub, which the Redis relay fills
// when several instances run.
type EventsHandler struct {
	upgrader *websocket.Upgrader
	hub      *notify.Hub
}

func NewEventsHandler(hub *notify.Hub, allowedOrigins []string) *EventsHandler {
	return &EventsHandler{upgrader: newUpgrader(allowedOrigins), hub: hub}
}

func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/events", h.Serve)
}

func (h *EventsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := newWSConn(conn)
	events, unsubscribe := h.hub.Subscribe(sc.UserID())
	defer unsubscribe()

	go c.writeLoop()
	go func() {
		for ev := range events {
			if !c.send(ev) {
				return
			}
		}
	}()

	// The page sends nothing; reading only notices the disconnect.
	c.prepareRead(4 << 10)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	c.close()
}
