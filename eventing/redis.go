package eventing

import (
	"context"
	"fmt"

	"github.com/agentuity/go-fragment/logger"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSubjectPrefix is used when no subject prefix is configured.
const DefaultSubjectPrefix = "fragment.events"

type redisMsgPayload struct {
	InternalData    []byte  `msgpack:"data"`
	InternalHeaders Headers `msgpack:"headers"`
}

type redisSubscriber struct {
	pubsub *redis.PubSub
}

func (s *redisSubscriber) Close() error {
	return s.pubsub.Close()
}

// RedisForwarder publishes hub events on Redis pub/sub, one subject per event
// type, and subscribes to events published by other loaders.
type RedisForwarder struct {
	rdb    *redis.Client
	prefix string
	logger logger.Logger
}

var _ Sink = (*RedisForwarder)(nil)

// NewRedisForwarder returns a forwarder publishing under prefix. The caller
// owns rdb.
func NewRedisForwarder(logger logger.Logger, rdb *redis.Client, prefix string) *RedisForwarder {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &RedisForwarder{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.With(map[string]interface{}{"component": "eventing"}),
	}
}

// Subject returns the channel events of type t are published on.
func (f *RedisForwarder) Subject(t Type) string {
	return f.prefix + "." + string(t)
}

// Forward publishes ev with the caller's trace context in its headers.
func (f *RedisForwarder) Forward(ctx context.Context, ev Event) error {
	data, err := msgpack.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := redisMsgPayload{InternalData: data, InternalHeaders: make(Headers)}
	// inject the trace context into the headers before starting a span
	propagator.Inject(ctx, msg.InternalHeaders)

	spanCtx, span := tracer.Start(ctx, "Forward",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("fragment.event", string(ev.Type))),
	)
	defer span.End()

	payload, err := msgpack.Marshal(msg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := f.rdb.Publish(spanCtx, f.Subject(ev.Type), payload).Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetStatus(codes.Ok, "event published")
	return nil
}

func (f *RedisForwarder) internalCallback(ctx context.Context, payload []byte, cb Handler) {
	var msg redisMsgPayload
	if err := msgpack.Unmarshal(payload, &msg); err != nil {
		f.logger.Error("failed to decode message %s", err)
		return
	}
	var ev Event
	if err := msgpack.Unmarshal(msg.InternalData, &ev); err != nil {
		f.logger.Error("failed to decode event %s", err)
		return
	}
	// extract the trace context from the headers
	spanCtx, span := tracer.Start(
		propagator.Extract(ctx, msg.InternalHeaders),
		"internalCallback",
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	cb(spanCtx, ev)
}

// Subscribe delivers events of the given types, or of every type when none
// is given, until ctx is done or the Subscriber is closed.
func (f *RedisForwarder) Subscribe(ctx context.Context, cb Handler, types ...Type) (Subscriber, error) {
	if len(types) == 0 {
		types = Types
	}
	subjects := make([]string, len(types))
	for i, t := range types {
		subjects[i] = f.Subject(t)
	}
	pubsub := f.rdb.Subscribe(ctx, subjects...)
	// wait for the subscription to be confirmed so no event is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case redisMsg, ok := <-ch:
				if !ok {
					return
				}
				f.internalCallback(ctx, []byte(redisMsg.Payload), cb)
			}
		}
	}()

	return &redisSubscriber{pubsub: pubsub}, nil
}
