package portal

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AttemptLimiter keeps one token bucket per client key.
type AttemptLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	maxKeys  int
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAttemptLimiter allows burst attempts and then one attempt per every.
func NewAttemptLimiter(every time.Duration, burst int) *AttemptLimiter {
	return &AttemptLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Every(every),
		burst:    burst,
		maxKeys:  10000,
		now:      time.Now,
	}
}

// Allow reports whether key may make another attempt now.
func (l *AttemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.getLimiter(key).AllowN(l.now(), 1)
}

func (l *AttemptLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, exists := l.limiters[key]
	if !exists {
		if len(l.limiters) >= l.maxKeys {
			l.evictLocked(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter
}

// evictLocked drops buckets that have fully refilled.
func (l *AttemptLimiter) evictLocked(now time.Time) {
	idle := time.Duration(float64(l.burst) / float64(l.rate) * float64(time.Second))
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > idle {
			delete(l.limiters, key)
		}
	}
	if len(l.limiters) >= l.maxKeys {
		l.limiters = make(map[string]*limiterEntry)
	}
}
