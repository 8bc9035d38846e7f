package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/orderflow/orderflow/internal/events"
)

// Orchestrator drives the order state machine from stock and payment
// outcomes and issues compensations. Every transition commits together with
// the triggering event's idempotency marker, so replays are no-ops.
type Orchestrator struct {
	log      *slog.Logger
	repo     OrderRepository
	producer string
}

func NewOrchestrator(log *slog.Logger, repo OrderRepository, producer string) *Orchestrator {
	return &Orchestrator{log: log, repo: repo, producer: producer}
}

// OnStockFreezeFailed cancels the order and emits the OrderCancelled
// compensation, which releases any sibling lines the ledger already froze.
func (o *Orchestrator) OnStockFreezeFailed(ctx context.Context, eventID string, ev events.StockFreezeFailed) error {
	return o.cancel(ctx, eventID, ev.OrderID, "stock freeze failed: "+ev.Reason)
}

// OnPaymentSucceeded completes the order. A zero-row transition means the
// order was concurrently cancelled or already completed; the payment side's
// own OrderCancelled handling settles the former.
func (o *Orchestrator) OnPaymentSucceeded(ctx context.Context, eventID string, ev events.PaymentSucceeded) error {
	outcome, err := o.repo.Complete(ctx, ev.OrderID, eventID)
	if err != nil {
		return err
	}
	switch outcome {
	case Applied:
		o.log.Info("order completed", "order_id", ev.OrderID, "payment_id", ev.PaymentID)
	case Duplicate:
		o.log.Info("payment success replayed, skipping", "event_id", eventID)
	case NoMatch:
		o.log.Warn("payment success for non-completable order", "order_id", ev.OrderID)
	}
	return nil
}

func (o *Orchestrator) cancel(ctx context.Context, eventID, orderID, reason string) error {
	ord, err := o.repo.Get(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		o.log.Error("event for unknown order", "order_id", orderID, "event_id", eventID)
		return nil
	}
	if err != nil {
		return err
	}

	payload := events.OrderCancelled{
		OrderID: ord.ID,
		OrderNo: ord.OrderNo,
		Reason:  reason,
		Items:   ord.QtyMap(),
	}
	env, err := events.NewEnvelope(events.TypeOrderCancelled, o.producer, payload)
	if err != nil {
		return err
	}

	outcome, err := o.repo.Cancel(ctx, orderID, eventID, events.MustMarshal(env))
	if err != nil {
		return err
	}
	switch outcome {
	case Applied:
		o.log.Info("order cancelled", "order_id", orderID, "reason", reason)
	case Duplicate:
		o.log.Info("cancellation replayed, skipping", "event_id", eventID)
	case NoMatch:
		o.log.Warn("cancel skipped, order not pending", "order_id", orderID, "status", ord.Status)
	}
	return nil
}
