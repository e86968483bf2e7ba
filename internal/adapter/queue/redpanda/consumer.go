package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

// Handler processes one decoded event. Errors are logged and the record is still committed.
type Handler func(ctx context.Context, ev domain.ResumeEvent) error

// fetchClient is the part of *kgo.Client the consumer needs.
type fetchClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	Close()
}

// Consumer reads resume events in a consumer group and dispatches the types it handles.
type Consumer struct {
	client   fetchClient
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewConsumer joins groupID on topic with manual commits.
func NewConsumer(ctx context.Context, brokers []string, groupID, topic string, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: missing required group ID")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w", err)
	}
	if err := createTopicIfNotExists(ctx, client, topic, 3, 1); err != nil {
		logger.Warn("failed to ensure events topic", slog.String("topic", topic), slog.Any("error", err))
	}
	return newConsumer(client, logger), nil
}

func newConsumer(client fetchClient, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{client: client, handlers: map[string]Handler{}, logger: logger}
}

// Handle registers h for events of eventType.
func (c *Consumer) Handle(eventType string, h Handler) {
	c.handlers[eventType] = h
}

// Run polls until ctx is done or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			c.process(ctx, rec)
			if err := c.client.CommitRecords(ctx, rec); err != nil {
				c.logger.Error("commit failed", slog.String("topic", rec.Topic), slog.Int64("offset", rec.Offset), slog.Any("error", err))
			}
		})
	}
}

func (c *Consumer) process(ctx context.Context, rec *kgo.Record) {
	var ev domain.ResumeEvent
	if err := json.Unmarshal(rec.Value, &ev); err != nil {
		c.logger.Warn("skipping undecodable event", slog.Int64("offset", rec.Offset), slog.Any("error", err))
		observability.RecordResumeEvent("unknown", "in", err)
		return
	}
	h, ok := c.handlers[ev.Type]
	if !ok {
		return
	}
	err := h(ctx, ev)
	observability.RecordResumeEvent(ev.Type, "in", err)
	if err != nil {
		c.logger.Error("event handler failed",
			slog.String("type", ev.Type),
			slog.String("resume_id", ev.ResumeID),
			slog.Any("error", err))
		return
	}
	c.logger.Info("event handled", slog.String("type", ev.Type), slog.String("resume_id", ev.ResumeID))
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}
