package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/order/domain"
)

func seedOrder(repo *fakeOrderRepo) *domain.Order {
	o := domain.NewOrder("O1", "N1", "U1", testItems)
	repo.orders[o.ID] = &o
	return &o
}

func TestPaymentSucceededCompletesOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	seedOrder(repo)
	orch := NewOrchestrator(discard(), repo, "order-test")
	ctx := context.Background()

	ev := events.PaymentSucceeded{PaymentID: "PAY1", OrderID: "O1"}
	for i := 0; i < 2; i++ {
		if err := orch.OnPaymentSucceeded(ctx, "E1", ev); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}
	if repo.orders["O1"].Status != domain.StatusCompleted {
		t.Fatalf("status: %s", repo.orders["O1"].Status)
	}
}

func TestStockFreezeFailedCancelsAndCompensates(t *testing.T) {
	repo := newFakeOrderRepo()
	seedOrder(repo)
	orch := NewOrchestrator(discard(), repo, "order-test")

	ev := events.StockFreezeFailed{OrderID: "O1", Reason: "insufficient stock for product P2"}
	if err := orch.OnStockFreezeFailed(context.Background(), "E1", ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if repo.orders["O1"].Status != domain.StatusCancelled {
		t.Fatalf("status: %s", repo.orders["O1"].Status)
	}
	if len(repo.cancelPayloads) != 1 {
		t.Fatalf("want one compensation payload, got %d", len(repo.cancelPayloads))
	}

	var env events.Envelope
	if err := json.Unmarshal(repo.cancelPayloads[0], &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.EventType != events.TypeOrderCancelled {
		t.Fatalf("event type: %s", env.EventType)
	}
	cancel, err := events.Unwrap[events.OrderCancelled](env.Payload)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	// Compensation carries the full line map so the ledger can release every
	// sibling line the order may have frozen.
	if cancel.Items["P1"] != 2 || cancel.Items["P2"] != 1 {
		t.Fatalf("compensation items: %+v", cancel.Items)
	}
}

func TestFreezeFailureAfterCompletionIsSkipped(t *testing.T) {
	repo := newFakeOrderRepo()
	seedOrder(repo)
	orch := NewOrchestrator(discard(), repo, "order-test")
	ctx := context.Background()

	if err := orch.OnPaymentSucceeded(ctx, "E1", events.PaymentSucceeded{OrderID: "O1"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := orch.OnStockFreezeFailed(ctx, "E2", events.StockFreezeFailed{OrderID: "O1"}); err != nil {
		t.Fatalf("late freeze failure: %v", err)
	}
	if repo.orders["O1"].Status != domain.StatusCompleted {
		t.Fatalf("completed order overwritten: %s", repo.orders["O1"].Status)
	}
	if len(repo.cancelPayloads) != 0 {
		t.Fatal("compensation emitted for a completed order")
	}
}

func TestPaymentSucceededAfterCancelIsSkipped(t *testing.T) {
	repo := newFakeOrderRepo()
	seedOrder(repo)
	orch := NewOrchestrator(discard(), repo, "order-test")
	ctx := context.Background()

	if err := orch.OnStockFreezeFailed(ctx, "E1", events.StockFreezeFailed{OrderID: "O1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := orch.OnPaymentSucceeded(ctx, "E2", events.PaymentSucceeded{OrderID: "O1"}); err != nil {
		t.Fatalf("late payment success: %v", err)
	}
	if repo.orders["O1"].Status != domain.StatusCancelled {
		t.Fatalf("cancelled order overwritten: %s", repo.orders["O1"].Status)
	}
}

func TestFreezeFailedForUnknownOrderIsAcked(t *testing.T) {
	orch := NewOrchestrator(discard(), newFakeOrderRepo(), "order-test")

	ev := events.StockFreezeFailed{OrderID: "missing"}
	if err := orch.OnStockFreezeFailed(context.Background(), "E1", ev); err != nil {
		t.Fatalf("unknown order must be acked, not retried: %v", err)
	}
}
