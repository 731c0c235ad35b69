package eventing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentuity/go-fragment/logger"
	"github.com/google/uuid"
)

// ErrUnknownType is returned by On for event types the hub does not carry.
var ErrUnknownType = errors.New("eventing: unknown event type")

// Subscription identifies a handler registered with On.
type Subscription struct {
	id  uint64
	typ Type
}

// Type returns the event type the subscription listens to.
func (s Subscription) Type() Type { return s.typ }

type registration struct {
	id uint64
	fn Handler
}

// Hub is a typed publish/subscribe channel scoped to one loader.
type Hub struct {
	log logger.Logger

	mu       sync.RWMutex
	next     uint64
	handlers map[Type][]registration
	sinks    []Sink
	closed   bool
}

// NewHub returns an empty Hub.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		log:      logger.WithComponent(log, "eventing"),
		handlers: make(map[Type][]registration),
	}
}

// On registers fn for events of type t.
func (h *Hub) On(t Type, fn Handler) (Subscription, error) {
	if !t.Valid() {
		return Subscription{}, ErrUnknownType
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.handlers[t] = append(h.handlers[t], registration{id: h.next, fn: fn})
	return Subscription{id: h.next, typ: t}, nil
}

// Off removes a handler and reports whether it was registered.
func (h *Hub) Off(sub Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	regs := h.handlers[sub.typ]
	for i, r := range regs {
		if r.id == sub.id {
			h.handlers[sub.typ] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// AddSink forwards every subsequent event to s.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Len returns the number of handlers registered for t.
func (h *Hub) Len(t Type) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[t])
}

// Emit delivers ev to the handlers registered for its type, in registration
// order, then to every sink. A panicking handler is logged and skipped.
func (h *Hub) Emit(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	regs := append([]registration(nil), h.handlers[ev.Type]...)
	sinks := append([]Sink(nil), h.sinks...)
	h.mu.RUnlock()

	for _, r := range regs {
		h.dispatch(ctx, r.fn, ev)
	}
	for _, s := range sinks {
		if err := s.Forward(ctx, ev); err != nil {
			h.log.Warn("failed to forward %s event for %s: %s", ev.Type, ev.Resource, err)
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("%s handler panicked: %v", ev.Type, r)
		}
	}()
	fn(ctx, ev)
}

// Close drops every handler and sink. Later emits are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	clear(h.handlers)
	h.sinks = nil
}
