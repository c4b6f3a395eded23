package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coreops/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(rl config.RateLimitingConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Security: config.SecurityConfig{RateLimiting: rl}}
	r := gin.New()
	r.Use(RateLimitMiddleware(cfg))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	r := newLimitedRouter(config.RateLimitingConfig{Enabled: false, Requests: 1})
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1:1234").Code)
	}
}

func TestRateLimitMiddleware_PerIP(t *testing.T) {
	r := newLimitedRouter(config.RateLimitingConfig{Enabled: true, Requests: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.1:1234").Code)
	}
	w := doRequest(r, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"Too Many Requests","message":"rate limit exceeded"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.2:1234").Code)
}

func TestRateLimitMiddleware_Whitelist(t *testing.T) {
	r := newLimitedRouter(config.RateLimitingConfig{Enabled: true, Requests: 1, Window: time.Minute, WhitelistIPs: []string{"127.0.0.1"}})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, "127.0.0.1:5555").Code)
	}
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(nil))
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
}
