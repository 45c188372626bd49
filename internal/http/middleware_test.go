package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/confessions/internal/config"
)

func TestAdminAuthMiddleware_Token(t *testing.T) {
	app := setupTestApp(t, testConfig())

	w := app.do(t, "GET", "/api/admin/confessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized: Admin token required"}`, w.Body.String())

	w = app.do(t, "GET", "/api/admin/confessions", nil, http.Header{"X-Admin-Token": []string{"wrong"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Forbidden: Invalid admin token"}`, w.Body.String())

	w = app.admin(t, "GET", "/api/admin/confessions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuthMiddleware_NoLoginRouteWithoutPassword(t *testing.T) {
	app := setupTestApp(t, testConfig())

	w := app.do(t, "POST", "/api/admin/login", gin.H{"password": "x"}, nil)
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestAdminAuthMiddleware_PanicsWithoutCredential(t *testing.T) {
	assert.Panics(t, func() { AdminAuthMiddleware(config.AdminConfig{}) })
}

func TestAdminSessionLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Admin.Token = ""
	cfg.Admin.PasswordHash = string(hash)
	cfg.Admin.SessionSecret = strings.Repeat("k", 32)
	app := setupTestApp(t, cfg)

	w := app.do(t, "POST", "/api/admin/login", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Password required"}`, w.Body.String())

	w = app.do(t, "POST", "/api/admin/login", gin.H{"password": "letmein"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(t, "GET", "/api/admin/confessions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, "POST", "/api/admin/login", gin.H{"password": "hunter22"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, adminSessionName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, "/api/admin", cookies[0].Path)

	withSession := http.Header{"Cookie": []string{cookies[0].Name + "=" + cookies[0].Value}}
	w = app.do(t, "GET", "/api/admin/confessions", nil, withSession)
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, "POST", "/api/admin/logout", nil, withSession)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := w.Result().Cookies()
	require.NotEmpty(t, cleared)
	assert.Equal(t, -1, cleared[0].MaxAge)
	assert.True(t, cleared[0].Secure)

	// A forged cookie does not pass the signature check.
	forged := http.Header{"Cookie": []string{adminSessionName + "=tampered"}}
	w = app.do(t, "GET", "/api/admin/confessions", nil, forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminSessionCookie_InsecureForConsoleLogs(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Admin.PasswordHash = string(hash)
	cfg.Admin.SessionSecret = strings.Repeat("k", 32)
	cfg.Log.Format = "console"
	app := setupTestApp(t, cfg)

	w := app.do(t, "POST", "/api/admin/login", gin.H{"password": "hunter22"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.False(t, cookies[0].Secure)
}

func TestRequestIDMiddleware(t *testing.T) {
	app := setupTestApp(t, testConfig())

	w := app.do(t, "GET", "/api/categories", nil, nil)
	generated := w.Header().Get(requestIDHeader)
	assert.Len(t, generated, 36)

	w = app.do(t, "GET", "/api/categories", nil, http.Header{requestIDHeader: []string{"abc-123"}})
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))

	w = app.do(t, "GET", "/api/categories", nil, http.Header{requestIDHeader: []string{strings.Repeat("x", 65)}})
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	app := setupTestApp(t, testConfig())

	w := app.do(t, "GET", "/api/categories", nil, nil)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestLoggerAndRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware(), LoggerMiddleware(log), RecoveryMiddleware(log))
	router.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/boom", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/ok", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	requests := logs.FilterMessage("request").All()
	require.Len(t, requests, 2)
	assert.Equal(t, zap.ErrorLevel, requests[0].Level)
	assert.Equal(t, zap.InfoLevel, requests[1].Level)
	assert.Equal(t, "/ok", requests[1].ContextMap()["path"])
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 2
	app := setupTestApp(t, cfg)

	body := gin.H{"content": "spam", "category": "funny"}
	for i := 0; i < 2; i++ {
		w := app.do(t, "POST", "/api/confessions", body, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := app.do(t, "POST", "/api/confessions", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too many requests. Please wait."}`, w.Body.String())

	// Reads and likes are not limited.
	for i := 0; i < 5; i++ {
		w = app.do(t, "GET", "/api/confessions", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Len(t, app.mirror.created, 2)
}

func TestIPRateLimiter_Evict(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewIPRateLimiter(rate.Limit(1), 1)
	rl.now = func() time.Time { return now }

	first := rl.GetLimiter("10.0.0.1")
	assert.Same(t, first, rl.GetLimiter("10.0.0.1"))

	now = now.Add(20 * time.Minute)
	rl.GetLimiter("10.0.0.2")
	now = now.Add(15 * time.Minute)

	assert.Equal(t, 1, rl.Evict(30*time.Minute))
	assert.Equal(t, 1, rl.size())
	assert.NotSame(t, first, rl.GetLimiter("10.0.0.1"))
}

func TestIPRateLimiter_JanitorStops(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(1), 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Janitor(ctx, time.Millisecond, time.Nanosecond)
		close(done)
	}()

	rl.GetLimiter("10.0.0.9")
	require.Eventually(t, func() bool { return rl.size() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
