package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/docpipe/pkg/configs"
)

// limiterSet 按键分配令牌桶，闲置超过 idle 的桶在下次清理时回收.
type limiterSet struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	idle  time.Duration
	items map[string]*limiterEntry
	swept time.Time
}

type limiterEntry struct {
	l    *rate.Limiter
	seen time.Time
}

func newLimiterSet(cfg configs.RateLimitConfig) *limiterSet {
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = configs.DefaultRateLimitIdleTTL
	}

	return &limiterSet{
		rps:   rate.Limit(cfg.RPS),
		burst: cfg.Burst,
		idle:  idle,
		items: make(map[string]*limiterEntry),
		swept: time.Now(),
	}
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.swept) > s.idle {
		for k, e := range s.items {
			if now.Sub(e.seen) > s.idle {
				delete(s.items, k)
			}
		}

		s.swept = now
	}

	e, ok := s.items[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(s.rps, s.burst)}
		s.items[key] = e
	}

	e.seen = now

	return e.l.AllowN(now, 1)
}

// RateLimitMiddleware 入口限流，需要放在身份中间件之后才能按 owner 限流.
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	set := newLimiterSet(cfg)

	return func(c *gin.Context) {
		if !set.allow(limitKey(c, cfg.Key), time.Now()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})

			return
		}

		c.Next()
	}
}

func limitKey(c *gin.Context, mode string) string {
	switch mode {
	case configs.RateLimitByGlobal:
		return "*"
	case configs.RateLimitByIP:
		return "ip:" + c.ClientIP()
	default:
		if owner := OwnerID(c); owner != "" {
			return "owner:" + owner
		}

		return "ip:" + c.ClientIP()
	}
}
