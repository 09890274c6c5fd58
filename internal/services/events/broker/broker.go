// Package broker fans committed lifecycle changes out to live subscribers.
//
// Delivery is best effort per subscription: a slow consumer is flagged as
// lagged instead of blocking publishers, and catches up by replaying the
// durable change log from its last seen sequence number.
package broker

import (
	"sync"

	"github.com/gatherpoint/gatherpoint/internal/services/events/domain"
)

const defaultBuffer = 64

// Hub routes changes to subscriptions keyed by scope. Scope entries are
// reference counted: a scope exists only while it has subscribers, so an
// event with no watchers costs nothing to publish to.
type Hub struct {
	mu     sync.Mutex
	scopes map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscription channel buffer.
func WithBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	hub := &Hub{
		scopes: make(map[string]map[*Subscription]struct{}),
		buffer: defaultBuffer,
	}
	for _, opt := range opts {
		opt(hub)
	}
	return hub
}

// Subscribe registers a subscription for one scope key. The caller must
// Close it when done.
func (h *Hub) Subscribe(scope string) *Subscription {
	sub := &Subscription{
		hub:    h,
		scope:  scope,
		events: make(chan domain.ChangeEvent, h.buffer),
		lagged: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.markClosed()
		return sub
	}
	subs, ok := h.scopes[scope]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.scopes[scope] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish delivers a committed change to every subscriber of its scopes.
// Publish never blocks: a full subscription is marked lagged and skipped.
func (h *Hub) Publish(change domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, scope := range change.ScopeKeys() {
		for sub := range h.scopes[scope] {
			select {
			case sub.events <- change:
			default:
				sub.markLagged()
			}
		}
	}
}

// SubscriberCount reports how many subscriptions a scope currently holds.
func (h *Hub) SubscriberCount(scope string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.scopes[scope])
}

// Close shuts the hub down and closes every remaining subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for scope, subs := range h.scopes {
		for sub := range subs {
			sub.markClosed()
		}
		delete(h.scopes, scope)
	}
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.scopes[sub.scope]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.scopes, sub.scope)
	}
}

// Subscription is one consumer's view of a scope.
type Subscription struct {
	hub    *Hub
	scope  string
	events chan domain.ChangeEvent
	lagged chan struct{}

	lagOnce   sync.Once
	closeOnce sync.Once
}

// Scope returns the scope key the subscription watches.
func (s *Subscription) Scope() string {
	return s.scope
}

// Events returns the change stream. The channel is closed when the
// subscription or the hub closes.
func (s *Subscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

// Lagged is closed once if the subscription missed a change. The consumer
// should replay the durable log after its last seen sequence number.
func (s *Subscription) Lagged() <-chan struct{} {
	return s.lagged
}

// Close detaches the subscription from the hub and closes its stream.
func (s *Subscription) Close() {
	if s.hub != nil {
		s.hub.unsubscribe(s)
	}
	s.markClosed()
}

func (s *Subscription) markLagged() {
	s.lagOnce.Do(func() {
		close(s.lagged)
	})
}

func (s *Subscription) markClosed() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}
