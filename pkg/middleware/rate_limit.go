package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/storyvault/pkg/configs"
)

const limiterIdleTTL = 15 * time.Minute

// RateLimitMiddleware 令牌桶限流，超限返回 429 与 Retry-After.
// tenant 维度依赖 AuthMiddleware 先注入调用方.
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	keyOf := rateLimitKey(strings.TrimSpace(cfg.Key))
	set := newLimiterSet(rate.Limit(cfg.RPS), max(cfg.Burst, 1), time.Now)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.RPS)))

	return func(c *gin.Context) {
		if !set.allow(keyOf(c)) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})

			return
		}

		c.Next()
	}
}

func rateLimitKey(mode string) func(*gin.Context) string {
	lower := strings.ToLower(mode)

	switch {
	case lower == "" || lower == "global":
		return func(*gin.Context) string { return "global" }
	case lower == "tenant":
		return func(c *gin.Context) string {
			if p := GetPrincipal(c); !p.IsAnonymous() {
				return "org:" + p.OrganizationID
			}

			return "ip:" + c.ClientIP()
		}
	case strings.HasPrefix(lower, "header:"):
		header := mode[len("header:"):]

		return func(c *gin.Context) string {
			if v := c.GetHeader(header); v != "" {
				return "h:" + v
			}

			return "ip:" + c.ClientIP()
		}
	default:
		return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
	}
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// limiterSet 按键维护令牌桶，闲置超过 limiterIdleTTL 的桶在下次清扫时回收.
type limiterSet struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

func newLimiterSet(limit rate.Limit, burst int, now func() time.Time) *limiterSet {
	return &limiterSet{entries: map[string]*limiterEntry{}, limit: limit, burst: burst, now: now, lastSweep: now()}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()

	now := s.now()
	if now.Sub(s.lastSweep) > limiterIdleTTL {
		for k, e := range s.entries {
			if now.Sub(e.seen) > limiterIdleTTL {
				delete(s.entries, k)
			}
		}

		s.lastSweep = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}

	e.seen = now
	s.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}
