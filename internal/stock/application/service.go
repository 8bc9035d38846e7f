package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/stock/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("version conflict retries exhausted")
)

const defaultMaxRetries = 3

type Service struct {
	log        *slog.Logger
	repo       StockRepository
	producer   string
	maxRetries int
}

func NewService(log *slog.Logger, repo StockRepository, producer string) *Service {
	return &Service{log: log, repo: repo, producer: producer, maxRetries: defaultMaxRetries}
}

// Freeze reserves qty of one product for an order. The optimistic loop reads
// the record, checks availability, and attempts the version-guarded update;
// a moved version retries up to maxRetries before surfacing ErrConflict.
func (s *Service) Freeze(ctx context.Context, orderID, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("freeze qty must be positive, got %d", qty)
	}
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		rec, err := s.repo.Get(ctx, productID)
		if err != nil {
			return err
		}
		if qty > rec.AvailableQty {
			return ErrInsufficientStock
		}
		outcome, err := s.repo.ApplyFreeze(ctx, productID, rec.Version, orderID, qty)
		if err != nil {
			return err
		}
		switch outcome {
		case Applied:
			return nil
		case AlreadyApplied:
			s.log.Info("freeze already recorded", "order_id", orderID, "product_id", productID)
			return nil
		case VersionConflict:
			continue
		}
	}
	return fmt.Errorf("freeze %s for order %s: %w", productID, orderID, ErrConflict)
}

// Release returns frozen stock to available. Safe to call for lines that
// were never frozen or already released; the reservation flip absorbs those.
func (s *Service) Release(ctx context.Context, orderID, productID string, qty int) error {
	return s.apply(ctx, "release", orderID, productID, qty, s.repo.ApplyRelease)
}

// Deduct finalizes frozen stock after payment: frozen and total both drop,
// available is untouched since it already dropped at freeze time.
func (s *Service) Deduct(ctx context.Context, orderID, productID string, qty int) error {
	return s.apply(ctx, "deduct", orderID, productID, qty, s.repo.ApplyDeduct)
}

func (s *Service) apply(ctx context.Context, op, orderID, productID string, qty int,
	fn func(context.Context, string, int64, string, int) (ApplyOutcome, error)) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		rec, err := s.repo.Get(ctx, productID)
		if err != nil {
			return err
		}
		outcome, err := fn(ctx, productID, rec.Version, orderID, qty)
		if err != nil {
			return err
		}
		switch outcome {
		case Applied:
			return nil
		case AlreadyApplied:
			s.log.Info(op+" already applied", "order_id", orderID, "product_id", productID)
			return nil
		case VersionConflict:
			continue
		}
	}
	return fmt.Errorf("%s %s for order %s: %w", op, productID, orderID, ErrConflict)
}

// HandleOrderCreated freezes every line of the order. Lines freeze
// independently; on the first insufficient line the remaining lines are not
// attempted and a StockFreezeFailed event is recorded. Already-frozen sibling
// lines stay frozen until the orchestrator's OrderCancelled compensation
// releases them.
func (s *Service) HandleOrderCreated(ctx context.Context, eventID string, ev events.OrderCreated) error {
	for _, productID := range sortedKeys(ev.Items) {
		err := s.Freeze(ctx, ev.OrderID, productID, ev.Items[productID])
		if err == nil {
			continue
		}
		if errors.Is(err, ErrInsufficientStock) {
			return s.recordFreezeFailure(ctx, eventID, ev, productID)
		}
		return err
	}
	return nil
}

func (s *Service) recordFreezeFailure(ctx context.Context, eventID string, ev events.OrderCreated, productID string) error {
	payload := events.StockFreezeFailed{
		OrderID: ev.OrderID,
		OrderNo: ev.OrderNo,
		Reason:  "insufficient stock for product " + productID,
	}
	env, err := events.NewEnvelope(events.TypeStockFreezeFailed, s.producer, payload)
	if err != nil {
		return err
	}
	created, err := s.repo.SaveFreezeFailure(ctx, eventID, ev.OrderID, events.MustMarshal(env))
	if err != nil {
		return err
	}
	if !created {
		s.log.Info("freeze failure already recorded", "event_id", eventID, "order_id", ev.OrderID)
	} else {
		s.log.Warn("stock freeze failed", "order_id", ev.OrderID, "product_id", productID)
	}
	return nil
}

// HandlePaymentSucceeded deducts every frozen line of the paid order.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, ev events.PaymentSucceeded) error {
	for _, productID := range sortedKeys(ev.Items) {
		if err := s.Deduct(ctx, ev.OrderID, productID, ev.Items[productID]); err != nil {
			return err
		}
	}
	return nil
}

// HandleOrderCancelled releases whatever lines of the order are still frozen.
func (s *Service) HandleOrderCancelled(ctx context.Context, ev events.OrderCancelled) error {
	for _, productID := range sortedKeys(ev.Items) {
		if err := s.Release(ctx, ev.OrderID, productID, ev.Items[productID]); err != nil {
			return err
		}
	}
	return nil
}

// Check is the read-only availability probe used by the order service before
// it commits an order. It never mutates and sits outside any commit boundary.
func (s *Service) Check(ctx context.Context, items map[string]int) (bool, []domain.InsufficientLine, error) {
	var short []domain.InsufficientLine
	for _, productID := range sortedKeys(items) {
		rec, err := s.repo.Get(ctx, productID)
		if err != nil {
			return false, nil, err
		}
		if items[productID] > rec.AvailableQty {
			short = append(short, domain.InsufficientLine{
				ProductID: productID,
				Required:  items[productID],
				Available: rec.AvailableQty,
			})
		}
	}
	return len(short) == 0, short, nil
}

func (s *Service) Replenish(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("replenish qty must be positive, got %d", qty)
	}
	return s.repo.Replenish(ctx, productID, qty)
}

func (s *Service) Get(ctx context.Context, productID string) (domain.StockRecord, error) {
	return s.repo.Get(ctx, productID)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
