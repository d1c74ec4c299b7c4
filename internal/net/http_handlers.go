// Package net exposes the server's HTTP surface: the websocket endpoint plus
// the health and diagnostics routes.
package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"voxelrift/internal/net/ws"
	"voxelrift/internal/server"
	"voxelrift/internal/telemetry"
)

// HTTPHandlerConfig tunes the HTTP surface.
type HTTPHandlerConfig struct {
	Logger telemetry.Logger
}

// NewHTTPHandler builds the full route table for the server process.
func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status      string `json:"status"`
			ServerTime  int64  `json:"serverTime"`
			Tick        uint64 `json:"tick"`
			TickRate    int    `json:"tickRate"`
			Seed        string `json:"seed"`
			Connections any    `json:"connections"`
			Telemetry   any    `json:"telemetry"`
		}{
			Status:      "ok",
			ServerTime:  time.Now().UnixMilli(),
			Tick:        uint64(hub.CurrentTick()),
			TickRate:    hub.TickRate(),
			Seed:        hub.Seed(),
			Connections: hub.DiagnosticsSnapshot(),
			Telemetry:   hub.TelemetrySnapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{Logger: logger})
	mux.HandleFunc("/ws", wsHandler.Handle)

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
