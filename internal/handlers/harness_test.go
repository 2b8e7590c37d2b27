package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/apiserver/internal/auth"
	"github.com/civictrack/apiserver/internal/events"
	"github.com/civictrack/apiserver/internal/logging"
	"github.com/civictrack/apiserver/internal/metrics"
	"github.com/civictrack/apiserver/internal/services"
	"github.com/civictrack/apiserver/internal/storage"
	"github.com/civictrack/apiserver/types"
)

const (
	testSecret         = "test-secret"
	testAdminSecretKey = "bootstrap-key"
	testUploadsDir     = "/uploads"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

type testEnv struct {
	router     *chi.Mux
	users      *memUserRepo
	complaints *memComplaintRepo
	fs         afero.Fs
	tokens     *auth.TokenService
	metrics    *metrics.Metrics
	redis      *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newMemUserRepo()
	complaints := newMemComplaintRepo(users)
	fs := afero.NewMemMapFs()
	objects := storage.NewStorage(storage.NewLocalClient(fs, testUploadsDir))
	require.NoError(t, objects.EnsureBucket(context.Background()))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	revocations := auth.NewRedisRevocationStore(rdb)

	logger := logging.Discard()
	m := metrics.New()
	tokens := auth.NewTokenService(testSecret)
	userSvc := services.NewUserService(users)
	complaintSvc := services.NewComplaintService(complaints, objects, events.NopPublisher{}, logger, "http://localhost:5000")
	guard := NewGuard(tokens, revocations, userSvc, m, logger)

	router := chi.NewRouter()
	AuthRouter(router, NewAuthHandler(userSvc, tokens, revocations, m, logger, testAdminSecretKey), guard, nil)
	router.Route("/complaints", func(r chi.Router) {
		ComplaintRouter(r, NewComplaintHandler(complaintSvc, m, logger), guard)
	})
	router.Route("/admin", func(r chi.Router) {
		AdminRouter(r, NewAdminHandler(userSvc, complaintSvc, m, logger), guard)
	})
	router.Get("/uploads/{key}", Uploads(objects, logger))

	return &testEnv{
		router:     router,
		users:      users,
		complaints: complaints,
		fs:         fs,
		tokens:     tokens,
		metrics:    m,
		redis:      mr,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// signup registers email and returns its token.
func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/signup", "", SignupRequest{Email: email, Password: "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp SignupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

// admin inserts an admin directly and returns a token for it.
func (e *testEnv) admin(t *testing.T, email string) string {
	t.Helper()
	user, err := e.users.Create(context.Background(), types.User{Email: email, PasswordHash: "x", Role: types.RoleAdmin})
	require.NoError(t, err)
	token, err := e.tokens.Issue(user.ID)
	require.NoError(t, err)
	return token
}

type formFile struct {
	name string
	data []byte
}

func (e *testEnv) createComplaint(t *testing.T, token, description, location string, file *formFile) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField(formFieldDesc, description))
	require.NoError(t, mw.WriteField(formFieldLocation, location))
	if file != nil {
		fw, err := mw.CreateFormFile(formFieldImage, file.name)
		require.NoError(t, err)
		_, err = fw.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/complaints", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeComplaint(t *testing.T, rec *httptest.ResponseRecorder) types.Complaint {
	t.Helper()
	var c types.Complaint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c), rec.Body.String())
	return c
}

func decodeComplaints(t *testing.T, rec *httptest.ResponseRecorder) []types.Complaint {
	t.Helper()
	var list []types.Complaint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list), rec.Body.String())
	return list
}

func scrapeMetrics(t *testing.T, e *testEnv) string {
	t.Helper()
	rec := httptest.NewRecorder()
	e.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
