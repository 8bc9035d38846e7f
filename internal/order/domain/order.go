package domain

import "time"

type Order struct {
	ID         string
	OrderNo    string
	UserID     string
	TotalCents int64
	Status     Status
	Items      []OrderItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type OrderItem struct {
	ProductID  string
	Qty        int
	PriceCents int64
}

func NewOrder(id, orderNo, userID string, items []OrderItem) Order {
	var total int64
	for _, item := range items {
		total += int64(item.Qty) * item.PriceCents
	}
	now := time.Now().UTC()
	return Order{
		ID:         id,
		OrderNo:    orderNo,
		UserID:     userID,
		TotalCents: total,
		Status:     StatusPendingPayment,
		Items:      items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// QtyMap flattens the order lines into the product->qty shape events carry.
func (o Order) QtyMap() map[string]int {
	m := make(map[string]int, len(o.Items))
	for _, item := range o.Items {
		m[item.ProductID] += item.Qty
	}
	return m
}
