package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/apollo-api/internal/constants"
	apierrors "github.com/yukikurage/apollo-api/internal/errors"
	"github.com/yukikurage/apollo-api/internal/metrics"
	"golang.org/x/time/rate"
)

// LoginLimitMessage is returned when a client exceeds the login attempt budget.
const LoginLimitMessage = "too many login attempts. please try again in 15 minutes."

// maxTrackedClients bounds the in-process limiter map
const maxTrackedClients = 10000

var errLimiterFull = errors.New("rate limiter is tracking too many clients")

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// MemoryLimiter is a per-key sliding window kept in process memory. Each key
// remembers the times of its last limit accepted requests.
type MemoryLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter allows limit requests in any window-long span.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit < 1 {
		limit = 1
	}
	return &MemoryLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// live drops the hits that fell out of the window ending at now.
func (l *MemoryLimiter) live(hits []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// sweep forgets clients whose window has fully expired.
func (l *MemoryLimiter) sweep(now time.Time) {
	for key, hits := range l.hits {
		if len(l.live(hits, now)) == 0 {
			delete(l.hits, key)
		}
	}
	l.lastSweep = now
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}

	hits, exists := l.hits[key]
	if !exists && len(l.hits) >= maxTrackedClients {
		l.sweep(now)
		if len(l.hits) >= maxTrackedClients {
			return Decision{}, errLimiterFull
		}
	}

	hits = l.live(hits, now)
	allowed := len(hits) < l.limit
	if allowed {
		hits = append(hits, now)
	}
	l.hits[key] = hits

	return Decision{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: l.limit - len(hits),
		Reset:     hits[0].Add(l.window).Sub(now),
	}, nil
}

// RedisLimiter is a fixed-window counter shared by every server instance.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter counts requests under prefix with a window-long expiry.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count request: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("failed to set window expiry: %w", err)
		}
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     ttl,
	}, nil
}

// RateLimit rejects clients over budget with 429 and message, and reports the
// budget in RateLimit-* headers. Limiter failures let the request through.
func RateLimit(limiter Limiter, message string, m *metrics.Metrics, log logrus.FieldLogger) gin.HandlerFunc {
	// an unreachable limiter fails every request, warn once a minute
	unavailable := &rate.Sometimes{First: 1, Interval: time.Minute}

	return func(c *gin.Context) {
		key := c.ClientIP()

		decision, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			m.Event(metrics.EventRateLimiterError, 1)
			unavailable.Do(func() {
				log.WithError(err).WithField("client_ip", key).Warn("Rate limiter unavailable")
			})
			c.Next()
			return
		}

		c.Header(constants.HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
		c.Header(constants.HeaderRateLimitLeft, strconv.Itoa(decision.Remaining))
		c.Header(constants.HeaderRateLimitReset, strconv.Itoa(int(math.Ceil(decision.Reset.Seconds()))))

		if !decision.Allowed {
			m.Event(metrics.EventRateLimited, 1)
			log.WithFields(logrus.Fields{
				"client_ip": key,
				"path":      c.FullPath(),
			}).Info("Rate limit exceeded")
			apierrors.TooManyRequests(c, message)
			return
		}
		c.Next()
	}
}
