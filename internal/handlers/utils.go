package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/civictrack/apiserver/internal/auth"
	"github.com/civictrack/apiserver/internal/services"
	"github.com/civictrack/apiserver/internal/store"
	"github.com/civictrack/apiserver/types"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// identity is what the guard resolves for an authenticated request.
type identity struct {
	principal types.Principal
	claims    auth.Claims
}

func withIdentity(ctx context.Context, id identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, id)
}

func identityFromContext(ctx context.Context) (identity, bool) {
	id, ok := ctx.Value(contextIdentityKey).(identity)
	return id, ok
}

// PrincipalFromContext returns the caller resolved by Guard.RequireAuth.
func PrincipalFromContext(ctx context.Context) (types.Principal, bool) {
	id, ok := identityFromContext(ctx)
	return id.principal, ok
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string                `json:"error"`
	Details []services.FieldError `json:"details,omitempty"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Msg string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDuplicateEmail), errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError replies with the mapped status. Internal errors are
// logged and replaced with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger logrus.FieldLogger, err error, notFoundMsg string) {
	status := statusForError(err)
	switch status {
	case http.StatusBadRequest:
		var verr *services.ValidationError
		errors.As(err, &verr)
		writeJSON(w, status, ErrorResponse{Error: "validation failed", Details: verr.Fields})
	case http.StatusUnauthorized:
		writeError(w, status, err.Error())
	case http.StatusForbidden:
		writeError(w, status, err.Error())
	case http.StatusNotFound:
		writeError(w, status, notFoundMsg)
	case http.StatusConflict:
		writeError(w, status, err.Error())
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		writeError(w, status, "server error")
	}
}

func parseID(r *http.Request, param string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || id < 1 {
		return 0, services.NewValidationError(param, "must be a positive integer")
	}
	return id, nil
}
