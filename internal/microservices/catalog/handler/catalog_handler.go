package handler

import (
	"net/http"

	"fulfillment-tracker/internal/common/httpx"
	"fulfillment-tracker/internal/microservices/catalog/repository"
	"fulfillment-tracker/internal/microservices/catalog/service"
)

type CatalogHandler struct {
	service service.CatalogServiceInterface
}

func NewCatalogHandler(svc service.CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	rows, err := h.service.List(r.Context(), kind)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []repository.Entry{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"kind": kind, "entries": rows})
}

func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.Get(r.Context(), r.PathValue("kind"), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, e)
}

func (h *CatalogHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req service.EntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	e, err := h.service.Put(r.Context(), r.PathValue("kind"), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, e)
}

func (h *CatalogHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.EntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	e, err := h.service.Update(r.Context(), r.PathValue("kind"), r.PathValue("id"), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, e)
}

func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("kind"), r.PathValue("id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
