package application

import (
	"context"
	"errors"
	"time"

	"github.com/orderflow/orderflow/internal/order/domain"
)

// ErrNotFound is returned by lookups for unknown orders.
var ErrNotFound = errors.New("order not found")

// TransitionOutcome classifies a marker-plus-CAS commit. NoMatch (zero rows
// where the state check expected one) is expected under races and replay; it
// is logged, never retried.
type TransitionOutcome int

const (
	Applied TransitionOutcome = iota
	Duplicate
	NoMatch
)

type OrderRepository interface {
	// CreateWithOutbox inserts the order, its items, and the OrderCreated
	// outbox row in one transaction.
	CreateWithOutbox(ctx context.Context, o domain.Order, payload []byte) error

	Get(ctx context.Context, id string) (domain.Order, error)

	// Complete transitions {PENDING_PAYMENT,PAID}->COMPLETED, recording the
	// event marker in the same transaction.
	Complete(ctx context.Context, orderID, eventID string) (TransitionOutcome, error)

	// Cancel transitions PENDING_PAYMENT->CANCELLED and queues the
	// compensating OrderCancelled outbox row atomically. An empty eventID
	// skips the marker (reconciler sweeps carry no incoming event).
	Cancel(ctx context.Context, orderID, eventID string, payload []byte) (TransitionOutcome, error)

	// FindExpired returns PENDING_PAYMENT orders created before cutoff,
	// items included, bounded by limit.
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)

	CountCancelledSince(ctx context.Context, since time.Time) (int64, error)
}

// StockChecker is the read-only availability probe consulted before an order
// commits. It is advisory enrichment: the authoritative reservation happens
// asynchronously in the stock ledger.
type StockChecker interface {
	Check(ctx context.Context, items map[string]int) (bool, error)
}
