package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/civictrack/apiserver/internal/metrics"
	"github.com/civictrack/apiserver/internal/services"
	"github.com/civictrack/apiserver/internal/storage"
	"github.com/civictrack/apiserver/types"
)

const (
	maxMultipartMemory = 8 << 20
	maxComplaintBody   = storage.MaxImageBytes + 1<<20
	formFieldDesc      = "description"
	formFieldLocation  = "location"
	formFieldImage     = "image"
)

// ComplaintHandler provides HTTP handlers for complaints.
type ComplaintHandler struct {
	complaints *services.ComplaintService
	metrics    *metrics.Metrics
	logger     logrus.FieldLogger
}

func NewComplaintHandler(complaints *services.ComplaintService, m *metrics.Metrics, logger logrus.FieldLogger) *ComplaintHandler {
	return &ComplaintHandler{complaints: complaints, metrics: m, logger: logger}
}

// ComplaintRouter registers complaint routes. Reads are public.
func ComplaintRouter(r chi.Router, handler *ComplaintHandler, guard *Guard) {
	r.Get("/", handler.ListComplaints)
	r.Get("/{id}", handler.GetComplaint)
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireAuth)
		r.Post("/", handler.CreateComplaint)
		r.Patch("/{id}/upvote", handler.UpvoteComplaint)
		r.Patch("/{id}/status", handler.UpdateStatus)
	})
}

type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *ComplaintHandler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := types.ComplaintFilter{
		Search: query.Get("search"),
		Status: types.Status(query.Get("status")),
	}

	complaints, err := h.complaints.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}
	if complaints == nil {
		complaints = []types.Complaint{}
	}
	writeJSON(w, http.StatusOK, complaints)
}

func (h *ComplaintHandler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	complaint, err := h.complaints.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "complaint not found")
		return
	}
	writeJSON(w, http.StatusOK, complaint)
}

func (h *ComplaintHandler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	in, cleanup, err := parseComplaintForm(w, r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}
	defer cleanup()

	complaint, err := h.complaints.Create(r.Context(), principal, in)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	h.metrics.ComplaintCreated()
	writeJSON(w, http.StatusCreated, complaint)
}

func (h *ComplaintHandler) UpvoteComplaint(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := parseID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	complaint, err := h.complaints.Upvote(r.Context(), principal, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "complaint not found")
		return
	}

	h.metrics.Upvoted()
	writeJSON(w, http.StatusOK, complaint)
}

func (h *ComplaintHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := parseID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	var req StatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	complaint, err := h.complaints.UpdateStatus(r.Context(), principal, id, types.Status(req.Status))
	if err != nil {
		if errors.Is(err, services.ErrForbidden) {
			h.metrics.AuthFailure("forbidden")
		}
		writeServiceError(w, r, h.logger, err, "complaint not found")
		return
	}

	h.metrics.StatusChanged(string(complaint.Status))
	writeJSON(w, http.StatusOK, complaint)
}

// parseComplaintForm reads the multipart submission. The returned cleanup
// closes the uploaded file and removes any spooled temp files.
func parseComplaintForm(w http.ResponseWriter, r *http.Request) (services.NewComplaint, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, maxComplaintBody)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return services.NewComplaint{}, noop, services.NewValidationError(formFieldImage, "image must be 5MB or smaller")
		}
		return services.NewComplaint{}, noop, services.NewValidationError("body", "invalid multipart form")
	}
	form := r.MultipartForm
	cleanup := func() { _ = form.RemoveAll() }

	in := services.NewComplaint{
		Description: r.FormValue(formFieldDesc),
		Location:    r.FormValue(formFieldLocation),
	}

	file, header, err := r.FormFile(formFieldImage)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, cleanup, nil
	case err != nil:
		cleanup()
		return services.NewComplaint{}, noop, services.NewValidationError(formFieldImage, "invalid image upload")
	}
	if header.Size > storage.MaxImageBytes {
		_ = file.Close()
		cleanup()
		return services.NewComplaint{}, noop, services.NewValidationError(formFieldImage, "image must be 5MB or smaller")
	}

	in.Image = &services.ImageUpload{Filename: header.Filename, Body: file}
	return in, func() {
		_ = file.Close()
		cleanup()
	}, nil
}
