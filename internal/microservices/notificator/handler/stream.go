// Package handler exposes realtime sessions over Server-Sent Events.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fulfillment-tracker/internal/common/httpx"
	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/notificator/gateway"
)

type StreamHandler struct {
	mgr       *gateway.Manager
	lg        *logger.Logger
	buffer    int
	heartbeat time.Duration
}

func NewStreamHandler(mgr *gateway.Manager, lg *logger.Logger, buffer int, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &StreamHandler{mgr: mgr, lg: lg, buffer: buffer, heartbeat: heartbeat}
}

// Stream serves GET /api/v1/realtime?role=team&craft=printing.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	role, err := gateway.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var craft domain.Craft
	if role == gateway.RoleTeam {
		craft, err = domain.ParseCraft(r.URL.Query().Get("craft"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteProblem(w, http.StatusInternalServerError, "internal_error", "streaming unsupported", nil)
		return
	}

	sink := gateway.NewChanSink(h.buffer)
	sess, err := h.mgr.Register(role, craft, sink)
	if err != nil {
		httpx.WriteProblem(w, http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
		return
	}
	defer h.mgr.Unregister(sess.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: session\ndata: {\"session_id\":%q}\n\n", sess.ID)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sink.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-sink.Events():
			if err := writeEvent(w, ev); err != nil {
				h.lg.Debug("stream_write_failed", map[string]any{"session_id": sess.ID, "reason": err.Error()})
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev gateway.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Name, data)
	return err
}
