package kafka

import (
	"context"
	"log/slog"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/kafkax"
	"github.com/orderflow/orderflow/internal/order/application"
)

// NewRegistry wires the orchestrator to the events it reacts to. The order
// service does not consume its own OrderCreated; it published it.
func NewRegistry(log *slog.Logger, orch *application.Orchestrator) kafkax.Registry {
	r := kafkax.Registry{}

	r.Register(events.TypeStockFreezeFailed, func(ctx context.Context, env events.Envelope) error {
		ev, err := events.Unwrap[events.StockFreezeFailed](env.Payload)
		if err != nil {
			log.Error("bad StockFreezeFailed payload", "event_id", env.EventID, "err", err)
			return nil
		}
		return orch.OnStockFreezeFailed(ctx, env.EventID, ev)
	})

	r.Register(events.TypePaymentSucceeded, func(ctx context.Context, env events.Envelope) error {
		ev, err := events.Unwrap[events.PaymentSucceeded](env.Payload)
		if err != nil {
			log.Error("bad PaymentSucceeded payload", "event_id", env.EventID, "err", err)
			return nil
		}
		return orch.OnPaymentSucceeded(ctx, env.EventID, ev)
	})

	return r
}
