// Package eventing carries loader lifecycle notifications. A Hub delivers
// them in process; a RedisForwarder republishes them for other processes.
package eventing

import (
	"context"
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	LoadStarted   Type = "loadStarted"
	LoadSucceeded Type = "loadSucceeded"
	LoadFailed    Type = "loadFailed"
)

// Types lists every lifecycle event type.
var Types = []Type{LoadStarted, LoadSucceeded, LoadFailed}

// Valid reports whether t is a known lifecycle event.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Event is one lifecycle notification.
type Event struct {
	ID        string            `msgpack:"id" json:"id"`
	Type      Type              `msgpack:"type" json:"type"`
	Resource  string            `msgpack:"resource" json:"resource"`
	Target    string            `msgpack:"target,omitempty" json:"target,omitempty"`
	Timestamp time.Time         `msgpack:"timestamp" json:"timestamp"`
	Metadata  map[string]string `msgpack:"metadata,omitempty" json:"metadata,omitempty"`
	Error     string            `msgpack:"error,omitempty" json:"error,omitempty"`
	Fallback  bool              `msgpack:"fallback,omitempty" json:"fallback,omitempty"`
	Cached    bool              `msgpack:"cached,omitempty" json:"cached,omitempty"`
	Attempts  int               `msgpack:"attempts,omitempty" json:"attempts,omitempty"`
}

// Handler receives events. Handlers run on the emitting goroutine.
type Handler func(ctx context.Context, ev Event)

// Sink receives every event after the in-process handlers ran.
type Sink interface {
	Forward(ctx context.Context, ev Event) error
}

// Headers represents message headers that can be used for both map operations and propagation
type Headers map[string]string

func (h Headers) Get(key string) string {
	return h[key]
}

func (h Headers) Set(key string, value string) {
	h[key] = value
}

func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

type Subscriber interface {
	// Close stops the subscriber
	Close() error
}
