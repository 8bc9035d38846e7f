package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/payment/domain"
)

type Service struct {
	log      *slog.Logger
	repo     PaymentRepository
	producer string
}

func NewService(log *slog.Logger, repo PaymentRepository, producer string) *Service {
	return &Service{log: log, repo: repo, producer: producer}
}

// HandleOrderCreated opens a PENDING payment for the order. The OrderCreated
// event id doubles as the payment's trace id, so a redelivered event can
// never insert a second payment.
func (s *Service) HandleOrderCreated(ctx context.Context, eventID string, ev events.OrderCreated) error {
	now := time.Now().UTC()
	p := domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     ev.OrderID,
		OrderNo:     ev.OrderNo,
		UserID:      ev.UserID,
		AmountCents: ev.TotalCents,
		Status:      domain.StatusPending,
		TraceID:     eventID,
		Items:       ev.Items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.repo.Create(ctx, p, eventID)
	if err != nil {
		return err
	}
	if !created {
		s.log.Info("payment already exists", "order_id", ev.OrderID, "trace_id", eventID)
		return nil
	}
	s.log.Info("payment created", "payment_id", p.ID, "order_id", ev.OrderID)
	return nil
}

// Succeed applies the gateway's success callback. Exactly one PENDING row
// transitions; a second invocation reports zero rows and changes nothing.
func (s *Service) Succeed(ctx context.Context, paymentID, channel, transactionID string) (bool, error) {
	p, err := s.repo.Get(ctx, paymentID)
	if err != nil {
		return false, err
	}

	payload := events.PaymentSucceeded{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		OrderNo:     p.OrderNo,
		UserID:      p.UserID,
		AmountCents: p.AmountCents,
		Items:       p.Items,
	}
	env, err := events.NewEnvelope(events.TypePaymentSucceeded, s.producer, payload)
	if err != nil {
		return false, err
	}

	rows, err := s.repo.MarkSucceeded(ctx, paymentID, transactionID, channel, events.MustMarshal(env))
	if err != nil {
		return false, err
	}
	if rows == 0 {
		s.log.Warn("success transition affected no rows", "payment_id", paymentID, "status", p.Status)
		return false, nil
	}
	s.log.Info("payment succeeded", "payment_id", paymentID, "order_id", p.OrderID)
	return true, nil
}

func (s *Service) Fail(ctx context.Context, paymentID, reason string) (bool, error) {
	rows, err := s.repo.MarkFailed(ctx, paymentID, reason)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		s.log.Warn("fail transition affected no rows", "payment_id", paymentID)
		return false, nil
	}
	s.log.Info("payment failed", "payment_id", paymentID, "reason", reason)
	return true, nil
}

func (s *Service) Refund(ctx context.Context, paymentID, refundTransactionID string) (bool, error) {
	rows, err := s.repo.MarkRefunded(ctx, paymentID, refundTransactionID)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		s.log.Warn("refund transition affected no rows", "payment_id", paymentID)
		return false, nil
	}
	s.log.Info("payment refunded", "payment_id", paymentID)
	return true, nil
}

// HandleOrderCancelled closes the payment side of a cancelled order: a still
// PENDING payment fails, an already successful one is refunded. Both paths
// are CAS-guarded, so replays and races settle on one terminal state.
func (s *Service) HandleOrderCancelled(ctx context.Context, eventID string, ev events.OrderCancelled) error {
	p, err := s.repo.FindByOrder(ctx, ev.OrderID)
	if errors.Is(err, ErrNotFound) {
		s.log.Info("no payment for cancelled order", "order_id", ev.OrderID)
		return nil
	}
	if err != nil {
		return err
	}

	switch p.Status {
	case domain.StatusPending:
		_, err = s.repo.MarkFailed(ctx, p.ID, "order cancelled: "+ev.Reason)
		return err
	case domain.StatusSuccess:
		_, err = s.repo.MarkRefunded(ctx, p.ID, "comp-"+eventID)
		return err
	default:
		return nil
	}
}

func (s *Service) Get(ctx context.Context, paymentID string) (domain.Payment, error) {
	return s.repo.Get(ctx, paymentID)
}
