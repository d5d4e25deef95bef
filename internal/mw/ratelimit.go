package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Buckets idle longer than this are dropped so the map does not grow with
// every client IP ever seen.
const bucketIdleTTL = time.Hour

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientBuckets keeps one token bucket per client IP.
type clientBuckets struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	rate      rate.Limit
	burst     int
	lastPrune time.Time
}

func (cb *clientBuckets) allow(ip string, now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if now.Sub(cb.lastPrune) > bucketIdleTTL {
		for key, b := range cb.buckets {
			if now.Sub(b.lastSeen) > bucketIdleTTL {
				delete(cb.buckets, key)
			}
		}
		cb.lastPrune = now
	}

	b, ok := cb.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(cb.rate, cb.burst)}
		cb.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

// RateLimiter throttles each client IP with its own token bucket and
// answers 429 once the bucket is empty. The webhook endpoint sits behind
// this too: a provider retrying faster than the refill rate is expected to
// back off and redeliver.
func RateLimiter(r rate.Limit, burst int) gin.HandlerFunc {
	cb := &clientBuckets{
		buckets:   make(map[string]*clientBucket),
		rate:      r,
		burst:     burst,
		lastPrune: time.Now(),
	}
	return func(c *gin.Context) {
		if !cb.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
