package patient

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for patient management
type Handler struct {
	repo *Repository
}

// NewHandler creates a new patient handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes registers the patient routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{patientID}", h.Get)
	r.Put("/{patientID}", h.Update)

	return r
}

// Create enrolls a new patient
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var p Patient
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if p.FirstName == "" || p.LastName == "" {
		writeError(w, errors.Validation("first and last name are required", nil))
		return
	}

	if err := h.repo.Create(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// List returns every active patient
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	patients, err := h.repo.ListActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if patients == nil {
		patients = []Patient{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"patients": patients,
		"total":    len(patients),
	})
}

// Get returns one patient
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update modifies an existing patient
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	var p Patient
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	p.ID = id

	if err := h.repo.Update(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
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
