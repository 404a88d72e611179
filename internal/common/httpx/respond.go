package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"fulfillment-tracker/internal/domain"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteProblem writes a simplified RFC 7807 problem body.
func WriteProblem(w http.ResponseWriter, code int, typ, detail string, extra map[string]any) {
	resp := map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	}
	for k, v := range extra {
		resp[k] = v
	}
	WriteJSON(w, code, resp)
}

// ErrorRecorder is implemented by response writers that log the cause of a 500.
type ErrorRecorder interface {
	RecordError(err error)
}

// WriteError maps domain errors onto HTTP problems. Unknown errors are 500s and
// their text is not echoed.
func WriteError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
		qe *domain.QuantityExceededError
		ce *domain.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		WriteProblem(w, http.StatusBadRequest, "validation_error", ve.Error(), map[string]any{"field": ve.Field})
	case errors.As(err, &nf):
		WriteProblem(w, http.StatusNotFound, "not_found", nf.Error(), nil)
	case errors.As(err, &qe):
		WriteProblem(w, http.StatusUnprocessableEntity, "quantity_exceeded", qe.Error(), map[string]any{
			"requested": qe.Requested, "remaining": qe.Remaining, "track": qe.Track,
		})
	case errors.As(err, &ce):
		WriteProblem(w, http.StatusConflict, "conflict", ce.Error(), map[string]any{"retryable": ce.Retryable})
	default:
		if rec, ok := w.(ErrorRecorder); ok {
			rec.RecordError(err)
		}
		WriteProblem(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

// DecodeJSON reads a JSON body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validation("body", "invalid JSON: %v", err)
	}
	return nil
}
