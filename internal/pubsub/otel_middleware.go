package pubsub

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedPublisher wraps a Publisher so every publish creates a span carrying
// the topic, originating user, and payload size. It is transparent to the
// wrapped publisher.
type TracedPublisher struct {
	publisher Publisher
	tracer    trace.Tracer
}

// NewTracedPublisher decorates a publisher with tracing.
func NewTracedPublisher(publisher Publisher, tracer trace.Tracer) *TracedPublisher {
	return &TracedPublisher{publisher: publisher, tracer: tracer}
}

// Publish wraps the publish operation with a span.
func (p *TracedPublisher) Publish(ctx context.Context, msg Message) error {
	spanCtx, span := p.tracer.Start(ctx, fmt.Sprintf("pubsub.publish.%s", msg.Topic),
		trace.WithAttributes(
			attribute.String("messaging.system", "watermill"),
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("user.id", msg.UserID),
			attribute.Int("messaging.message_payload_size_bytes", len(msg.Payload)),
		),
	)
	defer span.End()

	err := p.publisher.Publish(spanCtx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Close closes the underlying publisher.
func (p *TracedPublisher) Close() error {
	return p.publisher.Close()
}

// TracedSubscriber wraps a Subscriber so each handled message runs inside a
// processing span.
type TracedSubscriber struct {
	subscriber Subscriber
	tracer     trace.Tracer
}

// NewTracedSubscriber decorates a subscriber with tracing.
func NewTracedSubscriber(subscriber Subscriber, tracer trace.Tracer) *TracedSubscriber {
	return &TracedSubscriber{subscriber: subscriber, tracer: tracer}
}

// Subscribe wraps the handler so message processing is traced.
func (s *TracedSubscriber) Subscribe(ctx context.Context, topic string, handler Handler) error {
	traced := func(ctx context.Context, msg Message) error {
		spanCtx, span := s.tracer.Start(ctx, fmt.Sprintf("pubsub.process.%s", topic),
			trace.WithAttributes(
				attribute.String("messaging.system", "watermill"),
				attribute.String("messaging.operation", "process"),
				attribute.String("messaging.destination", topic),
				attribute.String("user.id", msg.UserID),
				attribute.Int("messaging.message_payload_size_bytes", len(msg.Payload)),
			),
		)
		defer span.End()

		if err := handler(spanCtx, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return nil
	}

	return s.subscriber.Subscribe(ctx, topic, traced)
}

// Close closes the underlying subscriber.
func (s *TracedSubscriber) Close() error {
	return s.subscriber.Close()
}
