package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newLimitedRouter(r rate.Limit, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimiter(r, burst))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func get(router *gin.Engine, remoteAddr string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_ExhaustedBucketReturns429(t *testing.T) {
	router := newLimitedRouter(rate.Limit(1), 2)

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1234"))
}

func TestRateLimiter_BucketsArePerClient(t *testing.T) {
	router := newLimitedRouter(rate.Limit(1), 1)

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1234"))

	// A different client has its own untouched bucket.
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.2:1234"))
}

func TestClientBuckets_IdleEntriesArePruned(t *testing.T) {
	now := time.Now()
	cb := &clientBuckets{
		buckets:   make(map[string]*clientBucket),
		rate:      rate.Limit(1),
		burst:     1,
		lastPrune: now,
	}

	assert.True(t, cb.allow("10.0.0.1", now))

	// Well past the TTL a sweep drops the idle bucket before the next
	// client is admitted.
	later := now.Add(2 * bucketIdleTTL)
	assert.True(t, cb.allow("10.0.0.2", later))
	assert.Len(t, cb.buckets, 1)
	_, kept := cb.buckets["10.0.0.1"]
	assert.False(t, kept)
}
