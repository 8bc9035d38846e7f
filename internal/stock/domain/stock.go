package domain

import "time"

// StockRecord is the per-product reservation ledger row. Every mutation is a
// single read-modify-write guarded by Version.
type StockRecord struct {
	ProductID    string
	TotalQty     int
	FrozenQty    int
	AvailableQty int
	Version      int64
	UpdatedAt    time.Time
}

// Consistent reports whether available = total - frozen with no negative
// quantities. It must hold after every committed operation.
func (r StockRecord) Consistent() bool {
	return r.TotalQty >= 0 && r.FrozenQty >= 0 && r.AvailableQty >= 0 &&
		r.AvailableQty == r.TotalQty-r.FrozenQty
}

type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationDeducted ReservationStatus = "DEDUCTED"
)

// Reservation records one frozen order line. The status flip away from
// RESERVED is what makes release and deduct idempotent per line.
type Reservation struct {
	OrderID   string
	ProductID string
	Qty       int
	Status    ReservationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsufficientLine describes a line that could not be frozen.
type InsufficientLine struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}
