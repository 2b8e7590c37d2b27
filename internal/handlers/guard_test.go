package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/apiserver/internal/auth"
	"github.com/civictrack/apiserver/internal/logging"
	"github.com/civictrack/apiserver/internal/metrics"
	"github.com/civictrack/apiserver/types"
)

func guarded(g *Guard) (http.Handler, *bool) {
	called := false
	return g.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		writeJSON(w, http.StatusOK, principal)
	})), &called
}

func TestGuardAcceptsHeaderAndBearer(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "a@x.io")

	bearer := httptest.NewRequest(http.MethodGet, "/user", nil)
	bearer.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, bearer)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/user", token, nil).Code)
}

func TestGuardRejections(t *testing.T) {
	users := newMemUserRepo()
	user, err := users.Create(t.Context(), types.User{Email: "a@x.io", Role: types.RoleUser})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := auth.NewTokenService(testSecret, auth.WithClock(func() time.Time { return now }))
	issuedAt := now
	valid, err := tokens.Issue(user.ID)
	require.NoError(t, err)
	ghost, err := tokens.Issue(999)
	require.NoError(t, err)
	foreign, err := auth.NewTokenService("other-secret", auth.WithClock(func() time.Time { return issuedAt })).Issue(user.ID)
	require.NoError(t, err)

	g := NewGuard(tokens, nil, users, metrics.New(), logging.Discard())

	tests := []struct {
		name  string
		token string
		at    time.Time
		want  int
	}{
		{"valid", valid, now, http.StatusOK},
		{"missing", "", now, http.StatusUnauthorized},
		{"garbage", "not.a.jwt", now, http.StatusUnauthorized},
		{"tampered", valid[:len(valid)-2] + "xx", now, http.StatusUnauthorized},
		{"other secret", foreign, now, http.StatusUnauthorized},
		{"unknown user", ghost, now, http.StatusUnauthorized},
		{"just before expiry", valid, issuedAt.Add(auth.TokenTTL - time.Second), http.StatusOK},
		{"expired", valid, issuedAt.Add(auth.TokenTTL + time.Second), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = tt.at
			handler, called := guarded(g)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				req.Header.Set(TokenHeader, tt.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want == http.StatusOK, *called)
		})
	}
}

func TestGuardLookupFailureIsServerError(t *testing.T) {
	tokens := auth.NewTokenService(testSecret)
	token, err := tokens.Issue(1)
	require.NoError(t, err)
	g := NewGuard(tokens, nil, failingLookup{}, metrics.New(), logging.Discard())

	handler, called := guarded(g)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TokenHeader, token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, *called)
}

func TestGuardRevocationOutageIsServerError(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "a@x.io")
	env.redis.Close()

	rec := env.do(t, http.MethodGet, "/user", token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingLookup struct{}

func (failingLookup) GetByID(context.Context, int) (types.User, error) {
	return types.User{}, errors.New("connection refused")
}
