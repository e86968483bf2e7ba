// Package redpanda publishes and consumes resume lifecycle events over Kafka-compatible brokers.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
)

// Header keys attached to every event record.
const (
	HeaderEventType = "event_type"
	HeaderResumeID  = "resume_id"
)

// syncProducer is the part of *kgo.Client the producer needs.
type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Producer implements domain.EventPublisher on a single topic.
type Producer struct {
	client syncProducer
	topic  string
}

func kotelHooks() kgo.Opt {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	return kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()...)
}

// NewProducer connects to brokers and ensures the events topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.DialTimeout(10*time.Second),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}
	if err := createTopicIfNotExists(ctx, client, topic, 3, 1); err != nil {
		slog.Warn("failed to ensure events topic", slog.String("topic", topic), slog.Any("error", err))
	}
	return newProducer(client, topic), nil
}

func newProducer(client syncProducer, topic string) *Producer {
	return &Producer{client: client, topic: topic}
}

// Publish writes ev keyed by resume id so a resume's events stay ordered.
func (p *Producer) Publish(ctx context.Context, ev domain.ResumeEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=redpanda.Publish: marshal: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.ResumeID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(ev.Type)},
			{Key: HeaderResumeID, Value: []byte(ev.ResumeID)},
		},
	}
	err = p.client.ProduceSync(ctx, rec).FirstErr()
	observability.RecordResumeEvent(ev.Type, "out", err)
	if err != nil {
		return fmt.Errorf("op=redpanda.Publish: %w", err)
	}
	obsctx.LoggerFromContext(ctx).Debug("resume event published", slog.String("type", ev.Type), slog.String("resume_id", ev.ResumeID))
	return nil
}

// Close flushes and closes the client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

var _ domain.EventPublisher = (*Producer)(nil)
