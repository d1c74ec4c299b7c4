package ws

import (
	"log"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"voxelrift/internal/server"
	"voxelrift/internal/telemetry"
)

// HandlerConfig tunes the websocket endpoint.
type HandlerConfig struct {
	Logger telemetry.Logger
}

// Handler upgrades HTTP requests and runs the per-connection read loop.
type Handler struct {
	hub      *server.Hub
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a websocket handler bound to the hub.
func NewHandler(hub *server.Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// Handle serves one client for the lifetime of its connection. The join, the
// read loop, and the disconnect all happen here; outbound frames flow through
// the session's write pump.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[ws] upgrade failed: %v", err)
		return
	}

	session := NewSession(wsConn, h.logger)
	conn := h.hub.Join(session)
	go session.Run()

	for {
		_, payload, err := wsConn.ReadMessage()
		if err != nil {
			break
		}
		h.hub.HandleMessage(conn, payload)
	}

	h.hub.Disconnect(conn.ID)
	if dropped := session.Dropped(); dropped > 0 {
		h.logger.Printf("[ws] connection %s dropped %d frames on lossy lanes", conn.ID, dropped)
	}
}
