package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"vectorloom/internal/middleware"
)

// Handler exposes the two side-effect entry points the external scheduler
// triggers.
type Handler struct {
	orchestrator *Orchestrator
	reconciler   *Reconciler
}

func NewHandler(orchestrator *Orchestrator, reconciler *Reconciler) *Handler {
	return &Handler{orchestrator: orchestrator, reconciler: reconciler}
}

func (h *Handler) RunGeneration(w http.ResponseWriter, r *http.Request) {
	summary, err := h.orchestrator.Run(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "generation run failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": summary}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reconciler.Run(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "reconciliation run failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": summary}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
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
