package domain

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusShipping       Status = "SHIPPING"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// CANCELLED is reachable only from PENDING_PAYMENT; that single edge is what
// lets a committed payment success always beat a concurrent timeout sweep.
var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusPaid: true, StatusCompleted: true, StatusCancelled: true},
	StatusPaid:           {StatusShipping: true, StatusCompleted: true},
	StatusShipping:       {StatusCompleted: true},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
