package domain

import "time"

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailed   Status = "FAILED"
	StatusRefunded Status = "REFUNDED"
)

// The lifecycle is monotonic: PENDING->SUCCESS, PENDING->FAILED,
// SUCCESS->REFUNDED. No other edge is legal, and every transition in the
// repository is a conditional update guarded by the required source state.
var validNext = map[Status]map[Status]bool{
	StatusPending:  {StatusSuccess: true, StatusFailed: true},
	StatusSuccess:  {StatusRefunded: true},
	StatusFailed:   {},
	StatusRefunded: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type Payment struct {
	ID            string
	OrderID       string
	OrderNo       string
	UserID        string
	AmountCents   int64
	Status        Status
	Channel       string
	TransactionID string
	// RefundTransactionID is set on SUCCESS->REFUNDED, FailReason on
	// PENDING->FAILED.
	RefundTransactionID string
	FailReason          string
	// TraceID is the idempotency key: the event id of the OrderCreated that
	// spawned this payment, unique-constrained in storage.
	TraceID   string
	Items     map[string]int
	CreatedAt time.Time
	UpdatedAt time.Time
}
