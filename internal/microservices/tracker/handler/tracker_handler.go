package handler

import (
	"net/http"

	"fulfillment-tracker/internal/common/httpx"
	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/tracker/service"
)

type TrackerHandler struct {
	service service.TrackerServiceInterface
}

func NewTrackerHandler(svc service.TrackerServiceInterface) *TrackerHandler {
	return &TrackerHandler{service: svc}
}

func (h *TrackerHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PlaceOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	v, err := h.service.PlaceOrder(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, v)
}

func (h *TrackerHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := domain.ParseOrderFilter(r.URL.Query().Get("filter"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	views, err := h.service.QueryOrders(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"filter": filter, "orders": views})
}

func (h *TrackerHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetOrder(r.Context(), r.PathValue("order_number"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

func (h *TrackerHandler) EditOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.EditOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	v, err := h.service.EditOrder(r.Context(), r.PathValue("order_number"), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

func (h *TrackerHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteOrder(r.Context(), r.PathValue("order_number")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TrackerHandler) SubmitCompletion(w http.ResponseWriter, r *http.Request) {
	var req domain.CompletionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	res, err := h.service.SubmitCompletion(r.Context(),
		r.PathValue("order_number"), r.PathValue("item_id"), r.PathValue("assignment_id"), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *TrackerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("order_number")
	acts, err := h.service.Reconcile(r.Context(), number)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if acts == nil {
		acts = []domain.Activation{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"order_number": number, "activations": acts})
}

func (h *TrackerHandler) TeamOrders(w http.ResponseWriter, r *http.Request) {
	craft, err := domain.ParseCraft(r.PathValue("craft"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	filter, err := domain.ParseOrderFilter(r.URL.Query().Get("filter"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	views, err := h.service.QueryTeamOrders(r.Context(), craft, filter)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"craft": craft, "filter": filter, "orders": views})
}
