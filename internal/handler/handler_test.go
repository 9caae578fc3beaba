package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/student-api/backend/internal/clock"
	"github.com/student-api/backend/internal/config"
	"github.com/student-api/backend/internal/db"
	"github.com/student-api/backend/internal/model"
	"github.com/student-api/backend/internal/ratelimit"
	"github.com/student-api/backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	router *gin.Engine
	clock  *clock.FakeClock
}

func newTestServer(t *testing.T, throttle Throttle) *testServer {
	t.Helper()
	return newProxiedTestServer(t, throttle, nil)
}

func newProxiedTestServer(t *testing.T, throttle Throttle, trustedProxies []string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	seed, err := db.SeedStudents(func(p string) (string, error) {
		h, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.MinCost)
		return string(h), err
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := db.NewMemory(seed...)
	tokens, err := service.NewTokenService(config.AuthConfig{
		JWTSecret:     "handler-test-secret",
		Issuer:        "StudentApi",
		Audience:      "StudentApiUsers",
		JWTAccessTTL:  "5m",
		JWTRefreshTTL: "168h",
	}, clk)
	require.NoError(t, err)

	router := gin.New()
	require.NoError(t, RegisterRoutes(router, Routes{
		Auth:           service.NewAuthService(repo, tokens, clk, nil, logger),
		Students:       service.NewStudentService(repo, logger),
		AllowedOrigins: []string{"http://localhost:5215"},
		TrustedProxies: trustedProxies,
		Throttle:       throttle,
		Logger:         logger,
	}))
	return &testServer{router: router, clock: clk}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, email, password string) model.TokenResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/login", "", model.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp model.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, Throttle{})

	w := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t, Throttle{})

	tokens := s.login(t, "fadi.Khalil@example.com", "Password1")
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Len(t, tokens.RefreshToken, 88)
	assert.Equal(t, int64(300), tokens.ExpiresIn)
	assert.Equal(t, "Bearer", tokens.TokenType)

	w := s.do(t, http.MethodGet, "/auth/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me model.AuthMeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, model.AuthMeResponse{UserID: 2, Email: "fadi.Khalil@example.com", Role: "Student"}, me)
}

func TestLoginErrors(t *testing.T) {
	s := newTestServer(t, Throttle{})

	w := s.do(t, http.MethodPost, "/auth/login", "", model.LoginRequest{Email: "fadi.Khalil@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, model.ErrorResponse{Error: "Invalid Credentials", Code: "Auth.Unauthorized"}, decodeError(t, w))

	w = s.do(t, http.MethodPost, "/auth/login", "", model.LoginRequest{Email: "ghost@example.com", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Auth.NotFound", decodeError(t, w).Code)

	w = s.do(t, http.MethodPost, "/auth/login", "", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Request.Invalid", decodeError(t, w).Code)

	missing := []struct {
		path string
		body any
	}{
		{"/auth/login", `{"email":"fadi.Khalil@example.com"}`},
		{"/auth/login", `{"password":"Password1"}`},
		{"/auth/refresh", `{"email":"fadi.Khalil@example.com"}`},
		{"/auth/logout", `{"refreshToken":"x"}`},
	}
	for _, tt := range missing {
		w = s.do(t, http.MethodPost, tt.path, "", tt.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, tt.path)
		assert.Equal(t, "Request.Invalid", decodeError(t, w).Code, tt.path)
	}
}

func TestRefreshAndLogoutFlow(t *testing.T) {
	s := newTestServer(t, Throttle{})
	email := "ola.jabber@example.com"
	first := s.login(t, email, "Password2")

	w := s.do(t, http.MethodPost, "/auth/refresh", "", model.RefreshRequest{Email: email, RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	var rotated model.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rotated))
	assert.NotEqual(t, first.RefreshToken, rotated.RefreshToken)

	w = s.do(t, http.MethodPost, "/auth/refresh", "", model.RefreshRequest{Email: email, RefreshToken: first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid refresh token", decodeError(t, w).Error)

	w = s.do(t, http.MethodPost, "/auth/logout", "", model.LogoutRequest{Email: email, RefreshToken: rotated.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"logged_out"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/auth/refresh", "", model.RefreshRequest{Email: email, RefreshToken: rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Refresh token is revoked", decodeError(t, w).Error)

	w = s.do(t, http.MethodPost, "/auth/logout", "", model.LogoutRequest{Email: email, RefreshToken: rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid Credentials", decodeError(t, w).Error)
}

func TestBearerMiddleware(t *testing.T) {
	s := newTestServer(t, Throttle{})
	tokens := s.login(t, "fadi.Khalil@example.com", "Password1")

	for _, header := range []string{"", "garbage"} {
		w := s.do(t, http.MethodGet, "/auth/me", header, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
	}

	s.clock.Advance(5 * time.Minute)
	w := s.do(t, http.MethodGet, "/auth/me", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStudentAnonymousQueries(t *testing.T) {
	s := newTestServer(t, Throttle{})

	w := s.do(t, http.MethodGet, "/api/students/passed", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var passed []model.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &passed))
	assert.Len(t, passed, 3)
	assert.NotContains(t, w.Body.String(), "$2a$")

	w = s.do(t, http.MethodGet, "/api/students/average-grade", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"averageGrade":68.75}`, w.Body.String())
}

func TestStudentAllRequiresAdmin(t *testing.T) {
	s := newTestServer(t, Throttle{})
	student := s.login(t, "fadi.Khalil@example.com", "Password1")
	admin := s.login(t, "ali.ahmed@example.com", "admin123")

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/students/all", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/students/all", student.AccessToken, nil).Code)

	w := s.do(t, http.MethodGet, "/api/students/all", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []model.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 4)
}

func TestStudentGetByIDOwnerOrAdmin(t *testing.T) {
	s := newTestServer(t, Throttle{})
	student := s.login(t, "fadi.Khalil@example.com", "Password1")
	admin := s.login(t, "ali.ahmed@example.com", "admin123")

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"owner", "/api/students/2", student.AccessToken, http.StatusOK},
		{"other student", "/api/students/3", student.AccessToken, http.StatusForbidden},
		{"admin override", "/api/students/3", admin.AccessToken, http.StatusOK},
		{"anonymous", "/api/students/2", "", http.StatusUnauthorized},
		{"zero id", "/api/students/0", admin.AccessToken, http.StatusBadRequest},
		{"non numeric", "/api/students/abc", admin.AccessToken, http.StatusBadRequest},
		{"missing", "/api/students/99", admin.AccessToken, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestStudentAdminMutations(t *testing.T) {
	s := newTestServer(t, Throttle{})
	admin := s.login(t, "ali.ahmed@example.com", "admin123")
	student := s.login(t, "fadi.Khalil@example.com", "Password1")

	newStudent := model.StudentRequest{Name: "Sami Odeh", Age: 18, Grade: 91, Email: "sami@example.com", Password: "Password5"}

	w := s.do(t, http.MethodPost, "/api/students", student.AccessToken, newStudent)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/students", admin.AccessToken, newStudent)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/api/students/5", w.Header().Get("Location"))

	w = s.do(t, http.MethodPost, "/api/students", admin.AccessToken, newStudent)
	assert.Equal(t, http.StatusConflict, w.Code)

	invalid := []model.StudentRequest{
		{Name: "Kid", Age: 5, Grade: 50},
		{Age: 10, Grade: 50},
		{Name: "Over", Age: 10, Grade: 101},
		{Name: "Long", Age: 10, Grade: 50, Email: "long@example.com", Password: strings.Repeat("a", 73)},
		{Name: "Wide", Age: 10, Grade: 50, Email: "wide@example.com", Password: strings.Repeat("é", 40)},
	}
	for _, req := range invalid {
		w = s.do(t, http.MethodPost, "/api/students", admin.AccessToken, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, req.Name)
		assert.Equal(t, model.ErrorResponse{Error: "Invalid student data.", Code: "Students.Invalid"}, decodeError(t, w))
	}

	s.login(t, "sami@example.com", "Password5")

	w = s.do(t, http.MethodPut, "/api/students/5", admin.AccessToken, model.StudentRequest{Name: "Sami O.", Age: 19, Grade: 95})
	require.Equal(t, http.StatusOK, w.Code)
	var updated model.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Sami O.", updated.Name)
	assert.Equal(t, 95, updated.Grade)

	w = s.do(t, http.MethodPut, "/api/students/42", admin.AccessToken, model.StudentRequest{Name: "x", Age: 10, Grade: 10})
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/students/5", admin.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/students/5", admin.AccessToken, nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Throttle{})

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5215")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5215", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

type denyAfter struct{ n int }

func (d *denyAfter) Allow(_ context.Context, _ string, limit int, window time.Duration) (*ratelimit.Result, error) {
	d.n--
	return &ratelimit.Result{Allowed: d.n >= 0, Limit: limit, ResetAt: time.Now().Add(window)}, nil
}

func TestLoginThrottle(t *testing.T) {
	s := newTestServer(t, Throttle{Limiter: &denyAfter{n: 1}, Limit: 1, Window: time.Minute})

	s.login(t, "ali.ahmed@example.com", "admin123")

	w := s.do(t, http.MethodPost, "/auth/login", "", model.LoginRequest{Email: "ali.ahmed@example.com", Password: "admin123"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(t, http.MethodPost, "/auth/logout", "", model.LogoutRequest{Email: "ali.ahmed@example.com", RefreshToken: "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type keyRecorder struct{ keys []string }

func (k *keyRecorder) Allow(_ context.Context, key string, limit int, _ time.Duration) (*ratelimit.Result, error) {
	k.keys = append(k.keys, key)
	return &ratelimit.Result{Allowed: true, Limit: limit, Remaining: limit}, nil
}

func (s *testServer) loginFrom(remoteAddr, forwardedFor string) int {
	raw, _ := json.Marshal(model.LoginRequest{Email: "ali.ahmed@example.com", Password: "admin123"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w.Code
}

func TestLoginThrottleIgnoresForwardedForByDefault(t *testing.T) {
	recorder := &keyRecorder{}
	s := newTestServer(t, Throttle{Limiter: recorder, Limit: 5, Window: time.Minute})

	for _, xff := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		assert.Equal(t, http.StatusOK, s.loginFrom("9.9.9.9:1234", xff))
	}

	assert.Equal(t, []string{
		"/auth/login:9.9.9.9",
		"/auth/login:9.9.9.9",
		"/auth/login:9.9.9.9",
	}, recorder.keys)
}

func TestLoginThrottleHonoursTrustedProxy(t *testing.T) {
	recorder := &keyRecorder{}
	s := newProxiedTestServer(t, Throttle{Limiter: recorder, Limit: 5, Window: time.Minute}, []string{"9.9.9.9"})

	assert.Equal(t, http.StatusOK, s.loginFrom("9.9.9.9:1234", "1.1.1.1"))
	assert.Equal(t, http.StatusOK, s.loginFrom("8.8.8.8:1234", "2.2.2.2"))

	assert.Equal(t, []string{"/auth/login:1.1.1.1", "/auth/login:8.8.8.8"}, recorder.keys)
}

func TestRegisterRoutesRejectsBadProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := RegisterRoutes(gin.New(), Routes{TrustedProxies: []string{"not-an-ip"}, Logger: logger})
	assert.Error(t, err)
}
