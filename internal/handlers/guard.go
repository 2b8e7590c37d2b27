package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/civictrack/apiserver/internal/auth"
	"github.com/civictrack/apiserver/internal/metrics"
	"github.com/civictrack/apiserver/internal/store"
	"github.com/civictrack/apiserver/types"
)

// TokenHeader is the header clients send their token in. The standard
// Authorization: Bearer form is accepted as a fallback.
const TokenHeader = "x-auth-token"

// UserLookup resolves the account behind a token.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// Guard authenticates requests and enforces role gates. It never writes
// persisted state.
type Guard struct {
	tokens      *auth.TokenService
	revocations auth.RevocationStore
	users       UserLookup
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
}

func NewGuard(tokens *auth.TokenService, revocations auth.RevocationStore, users UserLookup, m *metrics.Metrics, logger logrus.FieldLogger) *Guard {
	if revocations == nil {
		revocations = auth.NopRevocationStore{}
	}
	return &Guard{
		tokens:      tokens,
		revocations: revocations,
		users:       users,
		metrics:     m,
		logger:      logger,
	}
}

// RequireAuth resolves the caller and stores it in the request context.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			g.reject(w, http.StatusUnauthorized, "no_token", "no token, authorization denied")
			return
		}

		claims, err := g.tokens.Verify(token)
		if err != nil {
			g.reject(w, http.StatusUnauthorized, "invalid_token", "token is not valid")
			return
		}

		revoked, err := g.revocations.IsRevoked(r.Context(), claims.TokenID)
		if err != nil {
			g.logger.WithError(err).Error("checking token revocation")
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		if revoked {
			g.reject(w, http.StatusUnauthorized, "revoked_token", "token has been revoked")
			return
		}

		user, err := g.users.GetByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				g.reject(w, http.StatusUnauthorized, "unknown_user", "token is not valid")
				return
			}
			g.logger.WithError(err).WithField("user_id", claims.UserID).Error("loading token user")
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}

		ctx := withIdentity(r.Context(), identity{principal: user.Principal(), claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects callers without the admin role. It must run after
// RequireAuth.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			g.reject(w, http.StatusUnauthorized, "no_token", "no token, authorization denied")
			return
		}
		if !principal.Role.IsAdmin() {
			g.reject(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) reject(w http.ResponseWriter, status int, reason, message string) {
	g.metrics.AuthFailure(reason)
	writeError(w, status, message)
}

func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
