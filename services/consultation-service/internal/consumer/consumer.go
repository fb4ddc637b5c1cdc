// Package consumer reads Kafka topics and hands each new event to a handler.
package consumer

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/gurubook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates events by id.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader  Reader
	logger  *zap.Logger
	inbox   Inbox
	handler Handler
	backoff time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *zap.Logger, in Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return NewWithReader(logger, in, reader, handler)
}

func NewWithReader(logger *zap.Logger, in Inbox, reader Reader, handler Handler) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   in,
		handler: handler,
		backoff: time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		c.Process(ctx, msg)
	}
}

// Process applies one message. Handler failures are logged and the event is
// released from the inbox so a redelivery retries it.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	log := c.logger.With(zap.String("event_id", meta.EventID), zap.String("event_type", meta.EventType))

	fresh, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		log.Error("inbox record failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox")
		return
	}
	if !fresh {
		log.Info("duplicate event ignored")
		return
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		log.Error("handler error", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler")
		if err := c.inbox.Forget(context.WithoutCancel(ctxSpan), meta.EventID); err != nil {
			log.Error("inbox forget failed", zap.Error(err))
		}
	}
}
