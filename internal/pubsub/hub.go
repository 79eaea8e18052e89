package pubsub

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// LoadFunc produces the current snapshot for a key. It is called from the
// subscriber's delivery goroutine, never from Notify.
type LoadFunc[T any] func(ctx context.Context, key string) (T, error)

type Handler[T any] func(snapshot T)

type ErrorHandler func(key string, err error)

// Hub fans out snapshot notifications to per-key subscribers. Each subscriber
// owns one goroutine and a one-slot signal channel, so bursts of Notify calls
// conflate into a single reload of the latest state.
type Hub[T any] struct {
	load    LoadFunc[T]
	onError ErrorHandler

	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscriber[T]
	nextID atomic.Uint64
	closed bool
}

type subscriber[T any] struct {
	key     string
	handler Handler[T]
	signal  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub[T any](load LoadFunc[T], onError ErrorHandler) *Hub[T] {
	return &Hub[T]{
		load:    load,
		onError: onError,
		subs:    make(map[string]map[uint64]*subscriber[T]),
	}
}

// Subscribe registers handler for key and schedules an initial snapshot.
// The returned cancel stops delivery, waits for the goroutine to exit and is idempotent.
func (h *Hub[T]) Subscribe(key string, handler Handler[T]) (cancel func()) {
	ctx, stop := context.WithCancel(context.Background())
	sub := &subscriber[T]{
		key:     key,
		handler: handler,
		signal:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  stop,
		done:    make(chan struct{}),
	}
	id := h.nextID.Inc()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		stop()
		close(sub.done)
		return func() {}
	}
	if h.subs[key] == nil {
		h.subs[key] = make(map[uint64]*subscriber[T])
	}
	h.subs[key][id] = sub
	h.mu.Unlock()

	sub.signal <- struct{}{}
	go h.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.remove(key, id)
			sub.cancel()
			<-sub.done
		})
	}
}

// Notify marks keys dirty. It never blocks on subscribers.
func (h *Hub[T]) Notify(keys ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range keys {
		for _, sub := range h.subs[key] {
			select {
			case sub.signal <- struct{}{}:
			default:
			}
		}
	}
}

func (h *Hub[T]) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// Close cancels every subscription and waits for delivery goroutines to exit.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	h.closed = true
	all := h.subs
	h.subs = make(map[string]map[uint64]*subscriber[T])
	h.mu.Unlock()

	for _, byID := range all {
		for _, sub := range byID {
			sub.cancel()
			<-sub.done
		}
	}
}

func (h *Hub[T]) remove(key string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID := h.subs[key]
	if byID == nil {
		return
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(h.subs, key)
	}
}

func (h *Hub[T]) run(sub *subscriber[T]) {
	defer close(sub.done)
	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.signal:
		}

		snapshot, err := h.load(sub.ctx, sub.key)
		if sub.ctx.Err() != nil {
			return
		}
		if err != nil {
			if h.onError != nil {
				h.onError(sub.key, err)
			}
			continue
		}
		sub.handler(snapshot)
	}
}
