package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/apiserver/types"
)

func TestSignupIssuesVerifiableToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/signup", "", SignupRequest{Email: "a@x.io", Password: "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SignupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user created successfully", resp.Msg)

	claims, err := env.tokens.Verify(resp.Token)
	require.NoError(t, err)
	user, err := env.users.GetByEmail(t.Context(), "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, types.RoleUser, user.Role)
	assert.NotEqual(t, "secret123", user.PasswordHash)
}

func TestSignupDuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.io")

	rec := env.do(t, http.MethodPost, "/signup", "", SignupRequest{Email: "a@x.io", Password: "another1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"user already exists"}`, rec.Body.String())
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/signup", "", SignupRequest{Email: "not-an-email", Password: "123"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	fields := map[string]string{}
	for _, d := range resp.Details {
		fields[d.Field] = d.Message
	}
	assert.Contains(t, fields, "email")
	assert.Equal(t, "must be at least 6 characters", fields["password"])

	users, _ := env.users.List(t.Context())
	assert.Empty(t, users)
}

func TestSignupRejectsOverlongPasswords(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/signup", "", SignupRequest{Email: "a@x.io", Password: strings.Repeat("a", 73)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "password", resp.Details[0].Field)
	assert.Equal(t, "must be at most 72 characters", resp.Details[0].Message)

	// 30 characters but 90 bytes once encoded.
	rec = env.do(t, http.MethodPost, "/signup", "", SignupRequest{Email: "b@x.io", Password: strings.Repeat("密", 30)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at most 72 bytes")

	rec = env.do(t, http.MethodPost, "/signup", "", SignupRequest{Email: "c@x.io", Password: strings.Repeat("a", 72)})
	assert.Equal(t, http.StatusCreated, rec.Code)

	users, _ := env.users.List(t.Context())
	assert.Len(t, users, 1)
}

func TestSignin(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "a@x.io")

	rec := env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "a@x.io", Password: "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SigninResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a@x.io", resp.User.Email)
	assert.Equal(t, types.RoleUser, resp.User.Role)
	assert.NotEmpty(t, resp.Token)

	wrong := env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "a@x.io", Password: "nope"})
	unknown := env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "b@x.io", Password: "secret123"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Contains(t, scrapeMetrics(t, env), `civictrack_auth_failures_total{reason="invalid_credentials"} 2`)
}

func TestCurrentUserHidesPasswordHash(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "a@x.io")

	rec := env.do(t, http.MethodGet, "/user", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"a@x.io"`)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestSignoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "a@x.io")

	rec := env.do(t, http.MethodPost, "/signout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	claims, err := env.tokens.Verify(token)
	require.NoError(t, err)
	ttl := env.redis.TTL("revoked_token:" + claims.TokenID)
	assert.Greater(t, ttl, 23*time.Hour)

	rec = env.do(t, http.MethodGet, "/user", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	fresh := env.do(t, http.MethodPost, "/signin", "", SigninRequest{Email: "a@x.io", Password: "secret123"})
	require.Equal(t, http.StatusOK, fresh.Code)
}

func TestCreateAdmin(t *testing.T) {
	env := newTestEnv(t)

	bad := env.do(t, http.MethodPost, "/create-admin", "", CreateAdminRequest{Email: "boss@x.io", Password: "secret123", SecretKey: "guess"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
	_, err := env.users.GetByEmail(t.Context(), "boss@x.io")
	assert.Error(t, err, "rejected request must not create a user")

	rec := env.do(t, http.MethodPost, "/create-admin", "", CreateAdminRequest{Email: "boss@x.io", Password: "secret123", SecretKey: testAdminSecretKey})
	require.Equal(t, http.StatusCreated, rec.Code)
	user, err := env.users.GetByEmail(t.Context(), "boss@x.io")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, user.Role)

	dup := env.do(t, http.MethodPost, "/create-admin", "", CreateAdminRequest{Email: "boss@x.io", Password: "secret123", SecretKey: testAdminSecretKey})
	assert.Equal(t, http.StatusConflict, dup.Code)
}
