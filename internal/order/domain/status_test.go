package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPendingPayment, StatusPaid, true},
		{StatusPendingPayment, StatusCompleted, true},
		{StatusPendingPayment, StatusCancelled, true},
		{StatusPaid, StatusShipping, true},
		{StatusPaid, StatusCompleted, true},
		{StatusShipping, StatusCompleted, true},

		// CANCELLED only from PENDING_PAYMENT.
		{StatusPaid, StatusCancelled, false},
		{StatusShipping, StatusCancelled, false},
		{StatusCompleted, StatusCancelled, false},

		// Terminal states go nowhere.
		{StatusCompleted, StatusPendingPayment, false},
		{StatusCancelled, StatusPendingPayment, false},
		{StatusCancelled, StatusCompleted, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
