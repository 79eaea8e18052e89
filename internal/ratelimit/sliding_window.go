package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultWindow    = 5 * time.Minute
	DefaultMaxEvents = 5
)

type Clock func() time.Time

type Decision struct {
	Admitted   bool
	RetryAfter time.Duration
}

// RetryAfterSeconds is the whole-second hint sent back to rejected callers.
func (d Decision) RetryAfterSeconds() int {
	return int(d.RetryAfter / time.Second)
}

// Limiter admits at most N events per actor key in any rolling window.
//
// TryAdmit and Record are separate steps: callers record only after the guarded
// operation succeeded, so a failed send does not consume quota. Concurrent requests
// of one actor may all pass TryAdmit before any of them records, exceeding the limit
// by at most the number of requests in flight.
type Limiter interface {
	TryAdmit(key string) Decision
	Record(key string)
	// Sweep drops buckets with no timestamps left inside the window and reports how many.
	Sweep() int
}

type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
	dead   bool
}

// SlidingWindow is the process-local Limiter. Each actor key has its own lock;
// the map lock is held only to find or create a bucket.
type SlidingWindow struct {
	window time.Duration
	max    int
	now    Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewSlidingWindow(window time.Duration, maxEvents int, clock Clock) *SlidingWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if clock == nil {
		clock = time.Now
	}
	return &SlidingWindow{
		window:  window,
		max:     maxEvents,
		now:     clock,
		buckets: make(map[string]*bucket),
	}
}

// lockBucket returns the key's bucket locked. A bucket removed by Sweep between the
// map lookup and the lock is retried.
func (sw *SlidingWindow) lockBucket(key string) *bucket {
	for {
		sw.mu.Lock()
		b, ok := sw.buckets[key]
		if !ok {
			b = &bucket{}
			sw.buckets[key] = b
		}
		sw.mu.Unlock()

		b.mu.Lock()
		if !b.dead {
			return b
		}
		b.mu.Unlock()
	}
}

func (b *bucket) purge(cutoff time.Time) {
	i := 0
	for i < len(b.stamps) && !b.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[i:]...)
	}
}

func (sw *SlidingWindow) TryAdmit(key string) Decision {
	now := sw.now()
	b := sw.lockBucket(key)
	defer b.mu.Unlock()

	b.purge(now.Add(-sw.window))
	if len(b.stamps) < sw.max {
		return Decision{Admitted: true}
	}
	return Decision{RetryAfter: retryAfter(b.stamps[0].Add(sw.window).Sub(now))}
}

func (sw *SlidingWindow) Record(key string) {
	now := sw.now()
	b := sw.lockBucket(key)
	defer b.mu.Unlock()

	b.purge(now.Add(-sw.window))
	b.stamps = append(b.stamps, now)
	if over := len(b.stamps) - sw.max; over > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[over:]...)
	}
}

func (sw *SlidingWindow) Sweep() int {
	cutoff := sw.now().Add(-sw.window)
	sw.mu.Lock()
	defer sw.mu.Unlock()

	removed := 0
	for key, b := range sw.buckets {
		if !b.mu.TryLock() {
			continue
		}
		b.purge(cutoff)
		if len(b.stamps) == 0 {
			b.dead = true
			delete(sw.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

// Len reports the number of tracked actor keys.
func (sw *SlidingWindow) Len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.buckets)
}

// retryAfter rounds up to whole seconds, never below one.
func retryAfter(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}
