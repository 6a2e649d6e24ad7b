// Package ratelimit provides a fixed-window request limiter as gin
// middleware. Counters live in redis when available, so limits hold across
// replicas; without redis an in-process fallback keeps single-node behavior.
package ratelimit

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Counter increments a named counter inside a fixed window.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter enforces a requests-per-window cap keyed by client.
type Limiter struct {
	counter Counter
	window  time.Duration
}

// New builds a limiter over the given counter backend. A nil counter selects
// the in-memory fallback.
func New(counter Counter, window time.Duration) *Limiter {
	if counter == nil {
		counter = newMemoryCounter()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{counter: counter, window: window}
}

// Middleware caps requests per client per window for one route group. The
// name keeps counters of different routes apart. On a backend error the
// request is let through; losing a count beats refusing traffic.
func (l *Limiter) Middleware(name string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		key := "ratelimit:" + name + ":" + c.ClientIP()
		count, err := l.counter.IncrWindow(c.Request.Context(), key, l.window)
		if err != nil {
			log.Printf("ratelimit: counter error for %s: %v", key, err)
			c.Next()
			return
		}
		if count > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please wait before trying again.",
				"retry_after": int(l.window.Seconds()),
			})
			return
		}
		c.Next()
	}
}

// memoryCounter is the single-process fallback. Windows are aligned to the
// first hit per key and reset lazily.
type memoryCounter struct {
	mu      sync.Mutex
	entries map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{
		entries: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (m *memoryCounter) IncrWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &memoryWindow{resetAt: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	if len(m.entries) > 4096 {
		m.evictExpiredLocked(now)
	}
	return e.count, nil
}

func (m *memoryCounter) evictExpiredLocked(now time.Time) {
	for key, e := range m.entries {
		if now.After(e.resetAt) {
			delete(m.entries, key)
		}
	}
}
