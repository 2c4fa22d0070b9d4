package runtime

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const clientIdleTTL = 5 * time.Minute

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter allows perMinute requests per client, with a burst of the
// same size.
type rateLimiter struct {
	perMinute int
	log       *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	clients map[string]*limitedClient
	swept   time.Time
}

func newRateLimiter(perMinute int, log *slog.Logger) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		log:       log,
		now:       time.Now,
		clients:   make(map[string]*limitedClient),
	}
}

func (l *rateLimiter) allow(key string) bool {
	if l.perMinute <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > clientIdleTTL {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > clientIdleTTL {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &limitedClient{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			l.log.Warn("rate limit exceeded", slog.String("client", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{
				Error:   "rate_limited",
				Message: "Too many requests. Wait a moment and try again.",
			})
			return
		}
		c.Next()
	}
}
