package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/order/domain"
)

var ErrStockUnavailable = errors.New("stock unavailable")

type Service struct {
	log      *slog.Logger
	repo     OrderRepository
	stock    StockChecker
	producer string
}

func NewService(log *slog.Logger, repo OrderRepository, stock StockChecker, producer string) *Service {
	return &Service{log: log, repo: repo, stock: stock, producer: producer}
}

// CreateOrder commits the order and its OrderCreated outbox row in one
// transaction. The stock probe beforehand is advisory and read-only; if it
// fails we proceed and let the ledger's freeze decide.
func (s *Service) CreateOrder(ctx context.Context, userID string, items []domain.OrderItem) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, errors.New("order needs at least one item")
	}
	for _, item := range items {
		if item.Qty <= 0 {
			return domain.Order{}, fmt.Errorf("invalid qty %d for product %s", item.Qty, item.ProductID)
		}
	}

	o := domain.NewOrder(uuid.NewString(), newOrderNo(), userID, items)

	ok, err := s.stock.Check(ctx, o.QtyMap())
	if err != nil {
		s.log.Warn("stock pre-check unavailable, proceeding", "order_id", o.ID, "err", err)
	} else if !ok {
		return domain.Order{}, ErrStockUnavailable
	}

	payload := events.OrderCreated{
		OrderID:    o.ID,
		OrderNo:    o.OrderNo,
		UserID:     o.UserID,
		TotalCents: o.TotalCents,
		Items:      o.QtyMap(),
	}
	env, err := events.NewEnvelope(events.TypeOrderCreated, s.producer, payload)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.repo.CreateWithOutbox(ctx, o, events.MustMarshal(env)); err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order created", "order_id", o.ID, "order_no", o.OrderNo, "total_cents", o.TotalCents)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

func newOrderNo() string {
	return "ORD-" + time.Now().UTC().Format("20060102") + "-" + uuid.NewString()[:8]
}
