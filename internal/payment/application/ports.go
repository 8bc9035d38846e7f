package application

import (
	"context"
	"errors"

	"github.com/orderflow/orderflow/internal/payment/domain"
)

// ErrNotFound is returned by lookups for unknown payments.
var ErrNotFound = errors.New("payment not found")

type PaymentRepository interface {
	// Create inserts the payment and the incoming event's marker in one
	// transaction. A duplicate trace_id or marker inserts nothing and
	// returns false.
	Create(ctx context.Context, p domain.Payment, eventID string) (bool, error)

	Get(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Payment, error)

	// MarkSucceeded is the PENDING->SUCCESS compare-and-swap; when exactly
	// one row transitions, the PaymentSucceeded outbox row commits with it.
	// Zero rows affected is a normal outcome, reported, never an error.
	MarkSucceeded(ctx context.Context, paymentID, transactionID, channel string, payload []byte) (int64, error)

	// MarkFailed is the PENDING->FAILED compare-and-swap.
	MarkFailed(ctx context.Context, paymentID, reason string) (int64, error)

	// MarkRefunded is the SUCCESS->REFUNDED compare-and-swap.
	MarkRefunded(ctx context.Context, paymentID, refundTransactionID string) (int64, error)
}
