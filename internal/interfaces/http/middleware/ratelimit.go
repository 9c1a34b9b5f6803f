package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coopledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key. A bucket holds limit tokens
// and refills at limit per window, so a quiet client may burst up to limit.
type RateLimiter struct {
	limit  int
	every  rate.Limit
	idle   time.Duration
	mu     sync.Mutex
	bucket map[string]*keyedBucket
	stop   chan struct{}
	once   sync.Once
}

type keyedBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		limit:  limit,
		every:  rate.Every(window / time.Duration(limit)),
		idle:   2 * window,
		bucket: make(map[string]*keyedBucket),
		stop:   make(chan struct{}),
	}
	go rl.evictIdle()
	return rl
}

func (rl *RateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.bucket[key]
	if !ok {
		b = &keyedBucket{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.bucket[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// a bucket idle for two windows is full again, dropping it loses nothing
func (rl *RateLimiter) evictIdle() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, b := range rl.bucket {
				if now.Sub(b.lastSeen) > rl.idle {
					delete(rl.bucket, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the eviction goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Allow takes one token from key's bucket
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()
	return rl.get(key, now).AllowN(now, 1)
}

// Remaining reports the whole tokens left in key's bucket
func (rl *RateLimiter) Remaining(key string) int {
	now := time.Now()
	return int(math.Floor(rl.get(key, now).TokensAt(now)))
}

// RateLimit limits requests per cooperative, falling back to the client IP
// before authentication. Mount it after the JWT middleware.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string {
		if coop := c.GetString(CooperativeIDKey); coop != "" {
			return "coop:" + coop
		}
		return "ip:" + c.ClientIP()
	})
}

// RateLimitByKey limits requests on the key returned by keyFunc
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	limitHeader := strconv.Itoa(limiter.limit)
	return func(c *gin.Context) {
		key := keyFunc(c)
		c.Header("X-RateLimit-Limit", limitHeader)

		if !limiter.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(1/float64(limiter.every)))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"rate limit exceeded, retry later",
				getRequestID(c),
			))
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))
		c.Next()
	}
}
