package kafkax

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/pkg/idempotency"
	"github.com/orderflow/orderflow/pkg/tracing"
)

// Handler processes one decoded envelope. Returning nil commits the offset;
// an error leaves it uncommitted so the bus redelivers.
type Handler func(ctx context.Context, env events.Envelope) error

// Registry maps event types to handlers. It is built once at startup and
// consulted by the consumer's dispatch loop; events with no registered
// handler are acknowledged and dropped.
type Registry map[string]Handler

func (r Registry) Register(eventType string, h Handler) {
	if _, dup := r[eventType]; dup {
		panic(fmt.Sprintf("kafkax: handler already registered for %s", eventType))
	}
	r[eventType] = h
}

// Dispatch routes an envelope to its handler. The second return reports
// whether a handler was found.
func (r Registry) Dispatch(ctx context.Context, env events.Envelope) (bool, error) {
	h, ok := r[env.EventType]
	if !ok {
		return false, nil
	}
	return true, h(ctx, env)
}

type Consumer struct {
	log      *slog.Logger
	reader   *kafka.Reader
	registry Registry
	idem     *idempotency.Store
	service  string
	tracer   trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, group string, topics []string, service string, registry Registry, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		log:      log,
		reader:   r,
		registry: registry,
		idem:     idem,
		service:  service,
		tracer:   otel.Tracer(service + "-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if c.handle(ctx, msg) {
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.log.Error("offset commit failed", "err", err)
			}
		}
	}
}

// handle reports whether the offset may be committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	var env events.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		// Poison message; retrying cannot help.
		c.log.Error("envelope unmarshal failed", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		return true
	}

	// Cheap duplicate pre-filter. The durable marker inside each handler's
	// transaction is what actually guarantees idempotence.
	key := c.idem.Key(c.service, env.EventID)
	seen, err := c.idem.Check(ctx, key)
	if err != nil {
		c.log.Warn("dedup check failed, continuing", "err", err)
	} else if seen {
		c.log.Info("duplicate event skipped", "event_id", env.EventID, "type", env.EventType)
		return true
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume"+env.EventType)
	defer span.End()

	dispatched, err := c.registry.Dispatch(msgCtx, env)
	if !dispatched {
		c.log.Debug("no handler for event type", "type", env.EventType)
		return true
	}
	if err != nil {
		c.log.Error("event handling failed", "event_id", env.EventID, "type", env.EventType, "err", err)
		return false
	}
	// Marked only after the handler committed, so a failed delivery is
	// never hidden from retry.
	if err := c.idem.Mark(ctx, key); err != nil {
		c.log.Warn("dedup mark failed", "err", err)
	}
	return true
}
