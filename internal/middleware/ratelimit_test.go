package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_MemoryStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter, err := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 3,
		StoreType:         RateLimitStoreMemory,
	})
	require.NoError(t, err)

	router := gin.New()
	router.POST("/device/authorize", limiter, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/device/authorize", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do())
	}
	// The fourth request in the window is rejected with 429, never with a
	// device-grant error code.
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestNewRateLimiter_DefaultsToMemory(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1})
	require.NoError(t, err)
	assert.NotNil(t, limiter)
}
