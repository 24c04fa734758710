package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"vectorloom/internal/apperr"
	"vectorloom/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) EntityChanged(w http.ResponseWriter, r *http.Request) {
	var ev ChangeEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.Notify(r.Context(), ev); err != nil {
		switch {
		case apperr.IsValidation(err):
			h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		case apperr.IsNotFound(err):
			h.writeError(r.Context(), w, "NOT_FOUND", err.Error(), http.StatusNotFound)
		default:
			slog.Error("webhook processing failed", "error", err, "schema", ev.SchemaName, "table", ev.TableName)
			h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"status": "queued"}})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	json.NewEncoder(w).Encode(resp)
}
