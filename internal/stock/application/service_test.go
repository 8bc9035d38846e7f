package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/stock/domain"
)

type fakeStockRepo struct {
	records      map[string]*domain.StockRecord
	reservations map[string]domain.ReservationStatus // orderID|productID
	failures     [][]byte
	markers      map[string]bool

	// conflicts simulates a concurrent writer bumping the version between
	// the read and the conditional write, n times.
	conflicts int
}

func newFakeStockRepo() *fakeStockRepo {
	return &fakeStockRepo{
		records:      map[string]*domain.StockRecord{},
		reservations: map[string]domain.ReservationStatus{},
		markers:      map[string]bool{},
	}
}

func (f *fakeStockRepo) seed(productID string, total int) {
	f.records[productID] = &domain.StockRecord{
		ProductID:    productID,
		TotalQty:     total,
		AvailableQty: total,
		Version:      1,
	}
}

func resKey(orderID, productID string) string { return orderID + "|" + productID }

func (f *fakeStockRepo) Get(_ context.Context, productID string) (domain.StockRecord, error) {
	rec, ok := f.records[productID]
	if !ok {
		return domain.StockRecord{}, errors.New("no such product")
	}
	return *rec, nil
}

func (f *fakeStockRepo) contend(productID string) bool {
	if f.conflicts > 0 {
		f.conflicts--
		f.records[productID].Version++
		return true
	}
	return false
}

func (f *fakeStockRepo) ApplyFreeze(_ context.Context, productID string, version int64, orderID string, qty int) (ApplyOutcome, error) {
	if _, ok := f.reservations[resKey(orderID, productID)]; ok {
		return AlreadyApplied, nil
	}
	if f.contend(productID) {
		return VersionConflict, nil
	}
	rec := f.records[productID]
	if rec.Version != version || rec.AvailableQty < qty {
		return VersionConflict, nil
	}
	rec.AvailableQty -= qty
	rec.FrozenQty += qty
	rec.Version++
	f.reservations[resKey(orderID, productID)] = domain.ReservationReserved
	return Applied, nil
}

func (f *fakeStockRepo) ApplyRelease(_ context.Context, productID string, version int64, orderID string, qty int) (ApplyOutcome, error) {
	return f.flip(productID, version, orderID, qty, domain.ReservationReleased)
}

func (f *fakeStockRepo) ApplyDeduct(_ context.Context, productID string, version int64, orderID string, qty int) (ApplyOutcome, error) {
	return f.flip(productID, version, orderID, qty, domain.ReservationDeducted)
}

func (f *fakeStockRepo) flip(productID string, version int64, orderID string, qty int, to domain.ReservationStatus) (ApplyOutcome, error) {
	if f.reservations[resKey(orderID, productID)] != domain.ReservationReserved {
		return AlreadyApplied, nil
	}
	if f.contend(productID) {
		return VersionConflict, nil
	}
	rec := f.records[productID]
	if rec.Version != version {
		return VersionConflict, nil
	}
	rec.FrozenQty -= qty
	if to == domain.ReservationReleased {
		rec.AvailableQty += qty
	} else {
		rec.TotalQty -= qty
	}
	rec.Version++
	f.reservations[resKey(orderID, productID)] = to
	return Applied, nil
}

func (f *fakeStockRepo) SaveFreezeFailure(_ context.Context, eventID, _ string, payload []byte) (bool, error) {
	if f.markers[eventID] {
		return false, nil
	}
	f.markers[eventID] = true
	f.failures = append(f.failures, payload)
	return true, nil
}

func (f *fakeStockRepo) Replenish(_ context.Context, productID string, qty int) error {
	rec, ok := f.records[productID]
	if !ok {
		f.seed(productID, qty)
		return nil
	}
	rec.TotalQty += qty
	rec.AvailableQty += qty
	rec.Version++
	return nil
}

func (f *fakeStockRepo) mustConsistent(t *testing.T, productID string) {
	t.Helper()
	if rec := f.records[productID]; !rec.Consistent() {
		t.Fatalf("stock record inconsistent: %+v", *rec)
	}
}

func newTestService(repo *fakeStockRepo) *Service {
	return NewService(slog.New(slog.DiscardHandler), repo, "stock-test")
}

func TestFreezeInsufficientStock(t *testing.T) {
	repo := newFakeStockRepo()
	repo.seed("P1", 5)
	svc := newTestService(repo)

	err := svc.Freeze(context.Background(), "O2", "P1", 10)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("want ErrInsufficientStock, got %v", err)
	}
	if rec := repo.records["P1"]; rec.AvailableQty != 5 || rec.FrozenQty != 0 {
		t.Fatalf("record mutated on insufficient stock: %+v", *rec)
	}
}

func TestFreezeReleaseRoundTrip(t *testing.T) {
	repo := newFakeStockRepo()
	repo.seed("P1", 5)
	svc := newTestService(repo)
	ctx := context.Background()

	if err := svc.Freeze(ctx, "O1", "P1", 3); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	repo.mustConsistent(t, "P1")
	if rec := repo.records["P1"]; rec.AvailableQty != 2 || rec.FrozenQty != 3 {
		t.Fatalf("after freeze: %+v", *rec)
	}

	if err := svc.Release(ctx, "O1", "P1", 3); err != nil {
		t.Fatalf("release: %v", err)
	}
	repo.mustConsistent(t, "P1")
	if rec := repo.records["P1"]; rec.AvailableQty != 5 || rec.FrozenQty != 0 || rec.TotalQty != 5 {
		t.Fatalf("round trip did not restore record: %+v", *rec)
	}
}

func TestFreezeRetriesVersionConflict(t *testing.T) {
	repo := newFakeStockRepo()
	repo.seed("P1", 5)
	repo.conflicts = 2
	svc := newTestService(repo)

	if err := svc.Freeze(context.Background(), "O1", "P1", 2); err != nil {
		t.Fatalf("freeze should survive two conflicts: %v", err)
	}
	if rec := repo.records["P1"]; rec.FrozenQty != 2 {
		t.Fatalf("after contended freeze: %+v", *rec)
	}
}

func TestFreezeConflictExhaustion(t *testing.T) {
	repo := newFakeStockRepo()
	repo.seed("P1", 5)
	repo.conflicts = 10
	svc := newTestService(repo)

	err := svc.Freeze(context.Background(), "O1", "P1", 2)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestFreezeRejectsNonPositiveQty(t *testing.T) {
	repo := newFakeStockRepo()
	repo.seed("P1", 5)
	svc := newTestService(repo)

	if err := svc.Freeze(context.Background(), "O1", "P1", 0); err == nil {
		t.Fatal("want error for qty 0")
	}
}

func TestHandleOrderCreatedRedelivery(t *testing.T) {
	repo := newFakeStockRepo()
	repo.seed("P1", 5)
	svc := newTestService(repo)
	ctx := context.Background()

	ev := events.OrderCreated{OrderID: "O1", Items: map[string]int{"P1": 3}}
	for i := 0; i < 2; i++ {
		if err := svc.HandleOrderCreated(ctx, "E1", ev); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}
	if rec := repo.records["P1"]; rec.FrozenQty != 3 || rec.AvailableQty != 2 {
		t.Fatalf("redelivery froze twice: %+v", *rec)
	}
}

func TestHandleOrderCreatedPartialFailure(t *testing.T) {
	repo := newFakeStockRepo()
	repo.seed("P1", 5)
	repo.seed("P2", 1)
	svc := newTestService(repo)
	ctx := context.Background()

	ev := events.OrderCreated{OrderID: "O1", OrderNo: "N1", Items: map[string]int{"P1": 3, "P2": 4}}
	if err := svc.HandleOrderCreated(ctx, "E1", ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(repo.failures) != 1 {
		t.Fatalf("want one freeze failure event, got %d", len(repo.failures))
	}
	// P1 froze before P2 failed; the frozen line waits for compensation.
	if rec := repo.records["P1"]; rec.FrozenQty != 3 {
		t.Fatalf("sibling line not frozen: %+v", *rec)
	}

	if err := svc.HandleOrderCancelled(ctx, events.OrderCancelled{OrderID: "O1", Items: ev.Items}); err != nil {
		t.Fatalf("compensation: %v", err)
	}
	repo.mustConsistent(t, "P1")
	repo.mustConsistent(t, "P2")
	if rec := repo.records["P1"]; rec.AvailableQty != 5 || rec.FrozenQty != 0 {
		t.Fatalf("compensation did not restore P1: %+v", *rec)
	}
	if rec := repo.records["P2"]; rec.AvailableQty != 1 {
		t.Fatalf("P2 should be untouched: %+v", *rec)
	}
}

func TestFreezeThenPaymentDeduct(t *testing.T) {
	repo := newFakeStockRepo()
	repo.seed("P1", 5)
	svc := newTestService(repo)
	ctx := context.Background()

	if err := svc.HandleOrderCreated(ctx, "E1", events.OrderCreated{OrderID: "O1", Items: map[string]int{"P1": 3}}); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	pay := events.PaymentSucceeded{OrderID: "O1", Items: map[string]int{"P1": 3}}
	if err := svc.HandlePaymentSucceeded(ctx, pay); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	rec := repo.records["P1"]
	if rec.TotalQty != 2 || rec.FrozenQty != 0 || rec.AvailableQty != 2 {
		t.Fatalf("after deduct: %+v", *rec)
	}
	repo.mustConsistent(t, "P1")

	// Redelivered payment event must not deduct again.
	if err := svc.HandlePaymentSucceeded(ctx, pay); err != nil {
		t.Fatalf("redelivered deduct: %v", err)
	}
	if rec.TotalQty != 2 {
		t.Fatalf("deduct applied twice: %+v", *rec)
	}
}

func TestCheckReportsShortLines(t *testing.T) {
	repo := newFakeStockRepo()
	repo.seed("P1", 5)
	repo.seed("P2", 1)
	svc := newTestService(repo)

	ok, short, err := svc.Check(context.Background(), map[string]int{"P1": 2, "P2": 3})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatal("want available=false")
	}
	if len(short) != 1 || short[0].ProductID != "P2" || short[0].Available != 1 {
		t.Fatalf("short lines: %+v", short)
	}
}
