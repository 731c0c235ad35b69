package eventing

import (
	"context"
	"testing"
	"time"

	"github.com/agentuity/go-fragment/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return mr, client
}

func TestRedisForwarderSubject(t *testing.T) {
	_, client := newTestRedis(t)
	defer client.Close()
	f := NewRedisForwarder(logger.NewTestLogger(), client, "")
	assert.Equal(t, "fragment.events.loadFailed", f.Subject(LoadFailed))
	f = NewRedisForwarder(logger.NewTestLogger(), client, "app")
	assert.Equal(t, "app.loadStarted", f.Subject(LoadStarted))
}

func TestRedisForwarderRoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	defer client.Close()
	f := NewRedisForwarder(logger.NewTestLogger(), client, "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type received struct {
		ev      Event
		traceID trace.TraceID
	}
	ch := make(chan received, 4)
	sub, err := f.Subscribe(ctx, func(ctx context.Context, ev Event) {
		ch <- received{ev: ev, traceID: trace.SpanContextFromContext(ctx).TraceID()}
	}, LoadSucceeded)
	require.NoError(t, err)
	defer sub.Close()

	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	pubCtx := trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	}))

	// not subscribed to loadFailed
	require.NoError(t, f.Forward(pubCtx, Event{ID: "1", Type: LoadFailed, Resource: "x"}))
	require.NoError(t, f.Forward(pubCtx, Event{
		ID:       "2",
		Type:     LoadSucceeded,
		Resource: "header",
		Target:   "header-container",
		Metadata: map[string]string{"title": "Header"},
		Attempts: 1,
	}))

	select {
	case got := <-ch:
		assert.Equal(t, "2", got.ev.ID)
		assert.Equal(t, "header", got.ev.Resource)
		assert.Equal(t, "header-container", got.ev.Target)
		assert.Equal(t, "Header", got.ev.Metadata["title"])
		assert.Equal(t, traceID, got.traceID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected event %s", got.ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisForwarderAsHubSink(t *testing.T) {
	_, client := newTestRedis(t)
	defer client.Close()
	f := NewRedisForwarder(logger.NewTestLogger(), client, "hub")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan Event, 3)
	sub, err := f.Subscribe(ctx, func(_ context.Context, ev Event) { ch <- ev })
	require.NoError(t, err)
	defer sub.Close()

	hub := NewHub(logger.NewTestLogger())
	hub.AddSink(f)
	hub.Emit(ctx, Event{Type: LoadStarted, Resource: "sidebar"})
	hub.Emit(ctx, Event{Type: LoadSucceeded, Resource: "sidebar"})

	var types []Type
	for len(types) < 2 {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("events not received")
		}
	}
	assert.Equal(t, []Type{LoadStarted, LoadSucceeded}, types)
}

func TestRedisForwarderPublishError(t *testing.T) {
	mr, client := newTestRedis(t)
	defer client.Close()
	f := NewRedisForwarder(logger.NewTestLogger(), client, "test")
	mr.Close()
	err := f.Forward(context.Background(), Event{Type: LoadStarted})
	assert.ErrorContains(t, err, "failed to publish message")
}
