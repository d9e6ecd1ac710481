package notify

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for notifications
type Handler struct {
	repo *Repository
}

// NewHandler creates a new notification handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the notification routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/{notificationID}/acknowledge", h.Acknowledge)

	return r
}

// List lists notifications for a subject
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	subjectID, err := types.ParseID(r.URL.Query().Get("subject_id"))
	if err != nil {
		writeError(w, errors.BadRequest("subject_id is required"))
		return
	}

	unackedOnly := r.URL.Query().Get("unacknowledged") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	notifications, err := h.repo.ListBySubject(r.Context(), subjectID, unackedOnly, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	if notifications == nil {
		notifications = []HealthNotification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"total":         len(notifications),
	})
}

// Acknowledge marks a notification as acknowledged
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "notificationID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid notification ID"))
		return
	}

	if err := h.repo.Acknowledge(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
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
