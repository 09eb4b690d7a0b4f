package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter table; it is reset when full.
const maxTrackedClients = 10000

// ClientRateLimiter keeps one token bucket per client IP.
type ClientRateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*rate.Limiter
}

func NewClientRateLimiter(perSecond float64, burst int) *ClientRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientRateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*rate.Limiter),
	}
}

func (l *ClientRateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.clients = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[ip] = lim
	}
	return lim
}

// RateLimit rejects requests beyond the per-client budget with 429. A nil
// limiter disables the check.
func RateLimit(l *ClientRateLimiter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if l.limiter(ip).Allow() {
			c.Next()
			return
		}

		logger.WithFields(logrus.Fields{
			"client_ip": ip,
			"path":      c.Request.URL.Path,
		}).Warn("Rate limit exceeded")

		retry := 1
		if l.limit > 0 {
			retry = int(math.Ceil(1 / float64(l.limit)))
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "Rate limit exceeded. Please try again later.",
			},
		})
	}
}
