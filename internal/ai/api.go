package ai

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pulsecare/platform/internal/shared/errors"
)

// Handler provides HTTP handlers for the assistant endpoints
type Handler struct {
	client *Client
}

// NewHandler creates a new assistant handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// Routes registers the assistant routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/chat", h.Chat)
	r.Get("/health", h.HealthCheck)

	return r
}

// Chat forwards a free-form question to the assistant service
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body: "+err.Error()))
		return
	}

	if req.Message == "" {
		writeError(w, errors.BadRequest("message is required"))
		return
	}

	result, err := h.client.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HealthCheck checks the analysis service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
