package kafka

import (
	"context"
	"log/slog"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/kafkax"
	"github.com/orderflow/orderflow/internal/payment/application"
)

func NewRegistry(log *slog.Logger, svc *application.Service) kafkax.Registry {
	r := kafkax.Registry{}

	r.Register(events.TypeOrderCreated, func(ctx context.Context, env events.Envelope) error {
		ev, err := events.Unwrap[events.OrderCreated](env.Payload)
		if err != nil {
			log.Error("bad OrderCreated payload", "event_id", env.EventID, "err", err)
			return nil
		}
		return svc.HandleOrderCreated(ctx, env.EventID, ev)
	})

	r.Register(events.TypeOrderCancelled, func(ctx context.Context, env events.Envelope) error {
		ev, err := events.Unwrap[events.OrderCancelled](env.Payload)
		if err != nil {
			log.Error("bad OrderCancelled payload", "event_id", env.EventID, "err", err)
			return nil
		}
		return svc.HandleOrderCancelled(ctx, env.EventID, ev)
	})

	return r
}
