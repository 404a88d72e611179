package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fulfillment-tracker/internal/common/httpx"
	"fulfillment-tracker/internal/common/logger"
)

func Router(h *Handler, lg *logger.Logger) http.Handler {
	mux := http.NewServeMux()
	t := h.TrackerHandler
	mux.HandleFunc("POST /api/v1/orders", t.PlaceOrder)
	mux.HandleFunc("GET /api/v1/orders", t.ListOrders)
	mux.HandleFunc("GET /api/v1/orders/{order_number}", t.GetOrder)
	mux.HandleFunc("PATCH /api/v1/orders/{order_number}", t.EditOrder)
	mux.HandleFunc("DELETE /api/v1/orders/{order_number}", t.DeleteOrder)
	mux.HandleFunc("POST /api/v1/orders/{order_number}/items/{item_id}/assignments/{assignment_id}/completions", t.SubmitCompletion)
	mux.HandleFunc("POST /api/v1/orders/{order_number}/reconcile", t.Reconcile)
	mux.HandleFunc("GET /api/v1/teams/{craft}/orders", t.TeamOrders)

	if c := h.CatalogHandler; c != nil {
		mux.HandleFunc("GET /api/v1/catalog/{kind}", c.List)
		mux.HandleFunc("POST /api/v1/catalog/{kind}", c.Put)
		mux.HandleFunc("GET /api/v1/catalog/{kind}/{id}", c.Get)
		mux.HandleFunc("PUT /api/v1/catalog/{kind}/{id}", c.Update)
		mux.HandleFunc("DELETE /api/v1/catalog/{kind}/{id}", c.Delete)
	}
	if s := h.StreamHandler; s != nil {
		mux.HandleFunc("GET /api/v1/realtime", s.Stream)
	}
	mux.HandleFunc("GET /healthz", h.health)
	return withRequestLog(mux, lg)
}

const healthTimeout = 2 * time.Second

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(h.Checks))
	for _, c := range h.Checks {
		if err := c.Ping(ctx); err != nil {
			deps[c.Name] = err.Error()
			status, code = "unavailable", http.StatusServiceUnavailable
			continue
		}
		deps[c.Name] = "ok"
	}
	httpx.WriteJSON(w, code, map[string]any{"status": status, "dependencies": deps})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	err    error
}

// RecordError keeps the cause of a 500 for the request log.
func (s *statusRecorder) RecordError(err error) { s.err = err }

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps realtime streams working through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withRequestLog(next http.Handler, lg *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		fields := map[string]any{
			"method": r.Method, "path": r.URL.Path, "status": rec.status, "duration_ms": time.Since(start).Milliseconds(),
		}
		if rec.err != nil {
			lg.WithRequestID(id).Error("http_request_failed", rec.err, fields)
			return
		}
		lg.WithRequestID(id).Debug("http_request", fields)
	})
}
