package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"barchat/internal/config"
	"barchat/internal/logging"
	ws "barchat/internal/websocket"
)

type WebSocketHandlers struct {
	gate     *ws.Gate
	registry *ws.Registry
	broker   *ws.Broker
	cfg      config.ChatConfig
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(gate *ws.Gate, registry *ws.Registry, broker *ws.Broker, cfg config.ChatConfig) *WebSocketHandlers {
	return &WebSocketHandlers{
		gate:     gate,
		registry: registry,
		broker:   broker,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket upgrades the connection and runs admission. A
// rejected socket gets exactly one structured notice and is closed; an
// admitted one is registered and its pumps started.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ws.AdmitRequest{
		RoomID: q.Get("roomId"),
		UserID: q.Get("userId"),
		Token:  q.Get("token"),
		Lat:    q.Get("lat"),
		Lng:    q.Get("lng"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	admission, rejection := h.gate.Admit(r.Context(), req)
	if rejection != nil {
		ws.Reject(conn, rejection.Reason)
		return
	}

	client := ws.NewClient(conn, h.registry, h.broker, admission, h.cfg)
	h.registry.Register(admission.RoomID, client)

	go client.WritePump()
	go client.ReadPump()
}
