package portal

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
	"github.com/pulsecare/platform/internal/vitals"
)

// Handler provides HTTP handlers for the vitals pipeline
type Handler struct {
	service *Service
}

// NewHandler creates a new pipeline handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the vitals routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/device", h.IngestDevice)
	r.Post("/manual", h.IngestManual)
	r.Get("/{subjectID}/history", h.History)
	r.Get("/{subjectID}/latest", h.Latest)
	r.Get("/{subjectID}/trends", h.Trends)
	r.Post("/sync/flush", h.Flush)

	return r
}

// IngestDevice accepts a structured wearable payload
func (h *Handler) IngestDevice(w http.ResponseWriter, r *http.Request) {
	var reading vitals.DeviceReading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	h.ingest(w, r, reading)
}

// IngestManual accepts a manual-entry form submission
func (h *Handler) IngestManual(w http.ResponseWriter, r *http.Request) {
	var reading vitals.ManualReading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	h.ingest(w, r, reading)
}

// History returns records within a time range
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	subjectID, err := types.ParseID(chi.URLParam(r, "subjectID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid subject ID"))
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.service.History(r.Context(), subjectID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   len(records),
	})
}

// Latest returns the most recent record with its risk assessment
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	subjectID, err := types.ParseID(chi.URLParam(r, "subjectID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid subject ID"))
		return
	}

	record, assessment, err := h.service.Latest(r.Context(), subjectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"record":     record,
		"assessment": assessment,
	})
}

// Trends returns the current trend verdict for each metric
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	subjectID, err := types.ParseID(chi.URLParam(r, "subjectID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid subject ID"))
		return
	}

	trends, err := h.service.Trends(r.Context(), subjectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"trends": trends})
}

// Flush replays any writes deferred while persistence was unavailable
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.service.FlushQueue(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flushed": true})
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, reading vitals.RawReading) {
	result, err := h.service.Ingest(r.Context(), reading)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Queued {
		// The record is accepted but not yet durable in primary storage.
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error

	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, errors.BadRequest("invalid 'from' timestamp")
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, errors.BadRequest("invalid 'to' timestamp")
		}
	}
	return from, to, nil
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
