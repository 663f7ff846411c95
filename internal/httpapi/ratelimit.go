package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore holds one token bucket per client IP.
type rateLimiterStore struct {
	mutex     sync.Mutex
	limiters  map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastPrune time.Time
}

func newRateLimiterStore(requestsPerSecond float64, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
		now:      time.Now,
	}
}

func (store *rateLimiterStore) allow(ip string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	now := store.now()
	if now.Sub(store.lastPrune) > limiterIdleTTL {
		for key, entry := range store.limiters {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(store.limiters, key)
			}
		}
		store.lastPrune = now
	}
	entry, exists := store.limiters[ip]
	if !exists {
		entry = &clientLimiter{limiter: rate.NewLimiter(store.limit, store.burst)}
		store.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func rateLimitMiddleware(store *rateLimiterStore, logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ip := ctx.ClientIP()
		if !store.allow(ip) {
			logger.Warn("rate limit exceeded", zap.String("ip", ip))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, errorEnvelope(errorBody{
				Kind:    "rate_limited",
				Code:    "rate_limited",
				Message: "rate limit exceeded, try again later",
			}))
			return
		}
		ctx.Next()
	}
}
