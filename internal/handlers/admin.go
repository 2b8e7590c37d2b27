package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/civictrack/apiserver/internal/metrics"
	"github.com/civictrack/apiserver/internal/services"
	"github.com/civictrack/apiserver/types"
)

// AdminHandler provides administrator-only endpoints.
type AdminHandler struct {
	users      *services.UserService
	complaints *services.ComplaintService
	metrics    *metrics.Metrics
	logger     logrus.FieldLogger
}

func NewAdminHandler(users *services.UserService, complaints *services.ComplaintService, m *metrics.Metrics, logger logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{users: users, complaints: complaints, metrics: m, logger: logger}
}

// AdminRouter registers admin routes behind both guard gates.
func AdminRouter(r chi.Router, handler *AdminHandler, guard *Guard) {
	r.Use(guard.RequireAuth, guard.RequireAdmin)
	r.Get("/users", handler.ListUsers)
	r.Patch("/users/{id}/role", handler.UpdateRole)
	r.Delete("/complaints/{id}", handler.DeleteComplaint)
}

type RoleUpdateRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}
	if users == nil {
		users = []types.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	var req RoleUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	user, err := h.users.SetRole(r.Context(), id, types.Role(req.Role))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) DeleteComplaint(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id, err := parseID(r, "id")
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	if err := h.complaints.Delete(r.Context(), principal, id); err != nil {
		writeServiceError(w, r, h.logger, err, "complaint not found")
		return
	}

	h.metrics.ComplaintDeleted()
	writeJSON(w, http.StatusOK, MessageResponse{Msg: "complaint removed"})
}
