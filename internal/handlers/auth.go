package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/civictrack/apiserver/internal/auth"
	"github.com/civictrack/apiserver/internal/metrics"
	"github.com/civictrack/apiserver/internal/services"
	"github.com/civictrack/apiserver/types"
)

// AuthHandler provides account and session endpoints.
type AuthHandler struct {
	users          *services.UserService
	tokens         *auth.TokenService
	revocations    auth.RevocationStore
	metrics        *metrics.Metrics
	logger         logrus.FieldLogger
	adminSecretKey string
}

// NewAuthHandler constructs an AuthHandler. An empty adminSecretKey disables
// POST /create-admin.
func NewAuthHandler(
	users *services.UserService,
	tokens *auth.TokenService,
	revocations auth.RevocationStore,
	m *metrics.Metrics,
	logger logrus.FieldLogger,
	adminSecretKey string,
) *AuthHandler {
	if revocations == nil {
		revocations = auth.NopRevocationStore{}
	}
	return &AuthHandler{
		users:          users,
		tokens:         tokens,
		revocations:    revocations,
		metrics:        m,
		logger:         logger,
		adminSecretKey: adminSecretKey,
	}
}

// AuthRouter registers account routes. limit throttles the credential
// endpoints and may be nil.
func AuthRouter(r chi.Router, handler *AuthHandler, guard *Guard, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/signup", handler.Signup)
		r.Post("/signin", handler.Signin)
		r.Post("/create-admin", handler.CreateAdmin)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireAuth)
		r.Post("/signout", handler.Signout)
		r.Get("/user", handler.CurrentUser)
	})
}

type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type SignupResponse struct {
	Msg   string `json:"msg"`
	Token string `json:"token"`
}

type SigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SigninResponse struct {
	Token string          `json:"token"`
	User  types.Principal `json:"user"`
}

type CreateAdminRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	SecretKey string `json:"secretKey" validate:"required"`
}

// Signup registers a regular user and signs them in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, SignupResponse{Msg: "user created successfully", Token: token})
}

// Signin exchanges credentials for a token.
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	user, err := h.users.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		if statusForError(err) == http.StatusUnauthorized {
			h.metrics.AuthFailure("invalid_credentials")
		}
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	writeJSON(w, http.StatusOK, SigninResponse{Token: token, User: user.Principal()})
}

// Signout revokes the token used for this request until it would have
// expired anyway.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no token, authorization denied")
		return
	}

	ttl := time.Until(id.claims.ExpiresAt)
	if err := h.revocations.Revoke(r.Context(), id.claims.TokenID, ttl); err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Msg: "signed out"})
}

// CurrentUser returns the authenticated account.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no token, authorization denied")
		return
	}

	user, err := h.users.GetByID(r.Context(), principal.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// CreateAdmin bootstraps an admin account when the caller knows the
// configured secret key.
func (h *AuthHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	if h.adminSecretKey == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req CreateAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.SecretKey), []byte(h.adminSecretKey)) != 1 {
		h.metrics.AuthFailure("invalid_secret_key")
		writeError(w, http.StatusUnauthorized, "invalid secret key")
		return
	}

	user, err := h.users.CreateUserWithRole(r.Context(), req.Email, req.Password, types.RoleAdmin)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "")
		return
	}

	h.logger.WithField("user_id", user.ID).Info("admin account created")
	writeJSON(w, http.StatusCreated, MessageResponse{Msg: "admin user created successfully"})
}
