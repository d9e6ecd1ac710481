package escalation

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the SOS flow
type Handler struct {
	service *Service
}

// NewHandler creates a new escalation handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the SOS routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/{patientID}/trigger", h.Trigger)
	r.Post("/{patientID}/retry/{step}", h.Retry)
	r.Get("/{patientID}", h.Report)

	return r
}

// Trigger starts the SOS flow
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	report, err := h.service.Trigger(r.Context(), patientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Retry re-runs one failed step
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	report, err := h.service.RetryStep(r.Context(), patientID, Step(chi.URLParam(r, "step")))
	if err != nil {
		// A failed retry still carries the updated report.
		if appErr, ok := err.(*errors.AppError); ok && report != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(appErr.HTTPStatus)
			json.NewEncoder(w).Encode(map[string]any{
				"error":  appErr.Message,
				"code":   appErr.Code,
				"report": report,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Report returns the latest SOS report
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	patientID, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	report, err := h.service.Report(patientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
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
