package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedThrottle is a token bucket per key, used to shield public endpoints from bursts.
type KeyedThrottle struct {
	mu    sync.Mutex
	m     map[string]*throttleEntry
	rps   rate.Limit
	burst int
	idle  time.Duration
	now   Clock
}

func NewKeyedThrottle(rps float64, burst int, idle time.Duration, clock Clock) *KeyedThrottle {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	if clock == nil {
		clock = time.Now
	}
	return &KeyedThrottle{
		m:     make(map[string]*throttleEntry),
		rps:   rate.Limit(rps),
		burst: burst,
		idle:  idle,
		now:   clock,
	}
}

func (t *KeyedThrottle) Allow(key string) bool {
	now := t.now()
	t.mu.Lock()
	e, ok := t.m[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.m[key] = e
	}
	e.lastSeen = now
	t.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// Sweep forgets keys idle for longer than the configured TTL.
func (t *KeyedThrottle) Sweep() int {
	cutoff := t.now().Add(-t.idle)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, e := range t.m {
		if e.lastSeen.Before(cutoff) {
			delete(t.m, key)
			removed++
		}
	}
	return removed
}

func (t *KeyedThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
