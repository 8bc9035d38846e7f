package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/order/domain"
)

type fakeOrderRepo struct {
	orders  map[string]*domain.Order
	markers map[string]bool

	created        [][]byte // OrderCreated outbox payloads
	cancelPayloads [][]byte // OrderCancelled outbox payloads

	// beforeCancel runs just before the CANCELLED compare-and-swap,
	// simulating a transition that commits in the race window.
	beforeCancel func()
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:  map[string]*domain.Order{},
		markers: map[string]bool{},
	}
}

func (f *fakeOrderRepo) CreateWithOutbox(_ context.Context, o domain.Order, payload []byte) error {
	f.orders[o.ID] = &o
	f.created = append(f.created, payload)
	return nil
}

func (f *fakeOrderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, ErrNotFound
	}
	return *o, nil
}

func (f *fakeOrderRepo) Complete(_ context.Context, orderID, eventID string) (TransitionOutcome, error) {
	if f.markers[eventID] {
		return Duplicate, nil
	}
	f.markers[eventID] = true
	o, ok := f.orders[orderID]
	if !ok || (o.Status != domain.StatusPendingPayment && o.Status != domain.StatusPaid) {
		return NoMatch, nil
	}
	o.Status = domain.StatusCompleted
	return Applied, nil
}

func (f *fakeOrderRepo) Cancel(_ context.Context, orderID, eventID string, payload []byte) (TransitionOutcome, error) {
	if eventID != "" {
		if f.markers[eventID] {
			return Duplicate, nil
		}
		f.markers[eventID] = true
	}
	if f.beforeCancel != nil {
		f.beforeCancel()
	}
	o, ok := f.orders[orderID]
	if !ok || o.Status != domain.StatusPendingPayment {
		return NoMatch, nil
	}
	o.Status = domain.StatusCancelled
	f.cancelPayloads = append(f.cancelPayloads, payload)
	return Applied, nil
}

func (f *fakeOrderRepo) FindExpired(_ context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		if o.Status == domain.StatusPendingPayment && o.CreatedAt.Before(cutoff) {
			out = append(out, *o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) CountCancelledSince(_ context.Context, _ time.Time) (int64, error) {
	var n int64
	for _, o := range f.orders {
		if o.Status == domain.StatusCancelled {
			n++
		}
	}
	return n, nil
}

type fakeStockChecker struct {
	ok  bool
	err error
}

func (f fakeStockChecker) Check(context.Context, map[string]int) (bool, error) {
	return f.ok, f.err
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

var testItems = []domain.OrderItem{
	{ProductID: "P1", Qty: 2, PriceCents: 500},
	{ProductID: "P2", Qty: 1, PriceCents: 300},
}

func TestCreateOrderEmitsOrderCreated(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(discard(), repo, fakeStockChecker{ok: true}, "order-test")

	o, err := svc.CreateOrder(context.Background(), "U1", testItems)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != domain.StatusPendingPayment || o.TotalCents != 1300 {
		t.Fatalf("order: %+v", o)
	}
	if len(repo.created) != 1 {
		t.Fatalf("want one outbox payload, got %d", len(repo.created))
	}

	var env events.Envelope
	if err := json.Unmarshal(repo.created[0], &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.EventType != events.TypeOrderCreated || env.EventID == "" {
		t.Fatalf("envelope: %+v", env)
	}
	ev, err := events.Unwrap[events.OrderCreated](env.Payload)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if ev.OrderID != o.ID || ev.TotalCents != 1300 || ev.Items["P1"] != 2 {
		t.Fatalf("payload: %+v", ev)
	}
}

func TestCreateOrderStockUnavailable(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(discard(), repo, fakeStockChecker{ok: false}, "order-test")

	_, err := svc.CreateOrder(context.Background(), "U1", testItems)
	if !errors.Is(err, ErrStockUnavailable) {
		t.Fatalf("want ErrStockUnavailable, got %v", err)
	}
	if len(repo.orders) != 0 {
		t.Fatal("order committed despite failed pre-check")
	}
}

func TestCreateOrderProbeErrorProceeds(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(discard(), repo, fakeStockChecker{err: errors.New("probe down")}, "order-test")

	if _, err := svc.CreateOrder(context.Background(), "U1", testItems); err != nil {
		t.Fatalf("probe failure must not block order creation: %v", err)
	}
	if len(repo.orders) != 1 {
		t.Fatal("order not committed")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc := NewService(discard(), newFakeOrderRepo(), fakeStockChecker{ok: true}, "order-test")
	ctx := context.Background()

	if _, err := svc.CreateOrder(ctx, "U1", nil); err == nil {
		t.Fatal("want error for empty items")
	}
	bad := []domain.OrderItem{{ProductID: "P1", Qty: 0, PriceCents: 100}}
	if _, err := svc.CreateOrder(ctx, "U1", bad); err == nil {
		t.Fatal("want error for non-positive qty")
	}
}
