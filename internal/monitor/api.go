package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pulsecare/platform/internal/shared/auth"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the admin monitoring board
type Handler struct {
	store *SnapshotStore
}

// NewHandler creates a new monitoring handler
func NewHandler(store *SnapshotStore) *Handler {
	return &Handler{store: store}
}

// Routes registers the monitoring routes. The caller mounts these behind
// auth.RequireAdmin.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/patients", h.ListPatients)
	r.Get("/patients/{patientID}", h.GetPatient)
	r.Post("/patients/{patientID}/resolve-emergency", h.ResolveEmergency)

	return r
}

// ListPatients returns the full board, emergencies first
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	snapshots := h.store.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"patients": snapshots,
		"total":    len(snapshots),
	})
}

// GetPatient returns one patient's snapshot
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	snap, err := h.store.Get(patientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ResolveEmergency clears a patient's latched emergency flag
func (h *Handler) ResolveEmergency(w http.ResponseWriter, r *http.Request) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	var resolvedBy types.ID
	if user := auth.GetUser(r.Context()); user != nil {
		resolvedBy = user.ID
	}

	if err := h.store.ResolveEmergency(r.Context(), patientID, resolvedBy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": true})
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
