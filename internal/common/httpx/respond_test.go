package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fulfillment-tracker/internal/domain"
)

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"validation", domain.Validation("qty", "must be positive"), http.StatusBadRequest, "validation_error"},
		{"not found", domain.NotFound("order", "ORD-1"), http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("load: %w", domain.NotFound("item", "i1")), http.StatusNotFound, "not_found"},
		{"quantity", &domain.QuantityExceededError{AssignmentID: "a1", Track: domain.TrackMain, Requested: 5, Remaining: 2}, http.StatusUnprocessableEntity, "quantity_exceeded"},
		{"conflict", domain.Conflict("stale"), http.StatusConflict, "conflict"},
		{"internal", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body failed: %v", err)
			}
			if body["type"] != tt.typ {
				t.Fatalf("expected type %s, got %v", tt.typ, body["type"])
			}
		})
	}
}

func TestWriteErrorExtras(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &domain.QuantityExceededError{AssignmentID: "a1", Track: domain.TrackAssembly, Requested: 5, Remaining: 2})
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["remaining"] != float64(2) || body["requested"] != float64(5) || body["track"] != "assembly" {
		t.Fatalf("unexpected quantity problem %v", body)
	}

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("secret dsn in message"))
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("internal error text leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var v struct {
		Qty int `json:"qty"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":1,"total":9}`))
	err := DecodeJSON(r, &v)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "body" {
		t.Fatalf("expected body validation error, got %v", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":3}`))
	if err := DecodeJSON(r, &v); err != nil || v.Qty != 3 {
		t.Fatalf("decode failed: %v %+v", err, v)
	}
}
