package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storyboard/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestLimiter(t *testing.T, cfg config.RateLimitConfig, now *time.Time) (*RateLimiter, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(cfg)
	t.Cleanup(limiter.Stop)
	limiter.now = func() time.Time { return *now }

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/swagger/index.html", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return limiter, router
}

func hit(router *gin.Engine, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	tests := []struct {
		name          string
		config        config.RateLimitConfig
		requests      int
		expectedCodes []int
		clientIP      string
	}{
		{
			name:          "Normal usage - under limit",
			config:        config.RateLimitConfig{Requests: 10, Window: 1, Burst: 10},
			requests:      3,
			expectedCodes: []int{200, 200, 200},
			clientIP:      "192.168.1.1",
		},
		{
			name:          "At rate limit",
			config:        config.RateLimitConfig{Requests: 2, Window: 1, Burst: 2},
			requests:      2,
			expectedCodes: []int{200, 200},
			clientIP:      "192.168.1.2",
		},
		{
			name:          "Exceeds rate limit",
			config:        config.RateLimitConfig{Requests: 2, Window: 1, Burst: 2},
			requests:      3,
			expectedCodes: []int{200, 200, 429},
			clientIP:      "192.168.1.3",
		},
		{
			name:          "Burst defaults to requests",
			config:        config.RateLimitConfig{Requests: 1, Window: 60},
			requests:      2,
			expectedCodes: []int{200, 429},
			clientIP:      "192.168.1.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			_, router := newTestLimiter(t, tt.config, &now)

			for i := 0; i < tt.requests; i++ {
				w := hit(router, "/test", tt.clientIP)
				assert.Equal(t, tt.expectedCodes[i], w.Code, "request %d", i+1)
			}
		})
	}
}

func TestRateLimiter_Headers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, router := newTestLimiter(t, config.RateLimitConfig{Requests: 2, Window: 10, Burst: 2}, &now)

	w := hit(router, "/test", "10.0.0.1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	hit(router, "/test", "10.0.0.1")
	w = hit(router, "/test", "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	// one token every 5s
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())

	now = now.Add(5 * time.Second)
	assert.Equal(t, http.StatusOK, hit(router, "/test", "10.0.0.1").Code)
}

func TestRateLimiter_SeparateClients(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, router := newTestLimiter(t, config.RateLimitConfig{Requests: 1, Window: 60, Burst: 1}, &now)

	assert.Equal(t, http.StatusOK, hit(router, "/test", "192.168.1.4").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "/test", "192.168.1.4").Code)
	assert.Equal(t, http.StatusOK, hit(router, "/test", "192.168.1.5").Code)
}

func TestRateLimiter_SkipsSwagger(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, router := newTestLimiter(t, config.RateLimitConfig{Requests: 1, Window: 60, Burst: 1}, &now)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(router, "/swagger/index.html", "10.0.0.2").Code)
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{Requests: 10, Window: 1, Burst: 10})
	defer limiter.Stop()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.getLimiter("192.168.1.1", start)
	limiter.getLimiter("192.168.1.2", start.Add(8*time.Minute))
	assert.Len(t, limiter.clients, 2)

	limiter.evictIdle(start.Add(11 * time.Minute))

	assert.Len(t, limiter.clients, 1)
	assert.Contains(t, limiter.clients, "192.168.1.2")
}

func TestRateLimiter_StopEndsCleanup(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	limiter := NewRateLimiter(config.RateLimitConfig{Requests: 10, Window: 1})
	limiter.Stop()
	limiter.Stop()
}
