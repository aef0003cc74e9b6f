package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
	"github.com/noah-isme/edu-authoring-api/pkg/response"
)

var errRateLimited = appErrors.New("RATE_LIMITED", 429, "too many requests")

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles callers to maxRequests per window. Authenticated callers are keyed
// by user id, anonymous ones by client IP. Idle entries are evicted lazily.
func RateLimiter(maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	var (
		mu        sync.Mutex
		visitors  = make(map[string]*visitor)
		lastSweep = time.Now()
		expiry    = max(window*3, time.Minute)
		limit     = rate.Every(window / time.Duration(maxRequests))
	)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if value, ok := c.Get(ContextUserKey); ok {
			if claims, ok := value.(*models.JWTClaims); ok {
				key = "user:" + claims.UserID
			}
		}

		now := time.Now()
		mu.Lock()
		if now.Sub(lastSweep) > expiry {
			for k, v := range visitors {
				if now.Sub(v.lastSeen) > expiry {
					delete(visitors, k)
				}
			}
			lastSweep = now
		}
		v, ok := visitors[key]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(limit, maxRequests)}
			visitors[key] = v
		}
		v.lastSeen = now
		mu.Unlock()

		if !v.limiter.Allow() {
			response.Error(c, errRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
