package handler

import (
	"context"

	catalogh "fulfillment-tracker/internal/microservices/catalog/handler"
	streamh "fulfillment-tracker/internal/microservices/notificator/handler"
	"fulfillment-tracker/internal/microservices/tracker/service"
)

// HealthCheck is one dependency pinged by GET /healthz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

type Handler struct {
	TrackerHandler *TrackerHandler
	CatalogHandler *catalogh.CatalogHandler
	StreamHandler  *streamh.StreamHandler
	Checks         []HealthCheck
}

func New(svc service.TrackerServiceInterface, checks []HealthCheck, catalog *catalogh.CatalogHandler, stream *streamh.StreamHandler) *Handler {
	return &Handler{
		TrackerHandler: NewTrackerHandler(svc),
		CatalogHandler: catalog,
		StreamHandler:  stream,
		Checks:         checks,
	}
}
