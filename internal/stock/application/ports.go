package application

import (
	"context"

	"github.com/orderflow/orderflow/internal/stock/domain"
)

// ApplyOutcome is the result of one conditional write attempt. Zero rows
// affected is a normal outcome, not an error: it either means the version
// moved (retry) or the line was already handled (skip).
type ApplyOutcome int

const (
	Applied ApplyOutcome = iota
	VersionConflict
	AlreadyApplied
)

type StockRepository interface {
	Get(ctx context.Context, productID string) (domain.StockRecord, error)

	// ApplyFreeze moves qty from available to frozen and records the
	// reservation line, conditioned on the previously read version.
	ApplyFreeze(ctx context.Context, productID string, version int64, orderID string, qty int) (ApplyOutcome, error)

	// ApplyRelease is the compensation inverse of ApplyFreeze; it flips the
	// reservation RESERVED->RELEASED in the same transaction.
	ApplyRelease(ctx context.Context, productID string, version int64, orderID string, qty int) (ApplyOutcome, error)

	// ApplyDeduct consumes frozen stock on order completion
	// (RESERVED->DEDUCTED, frozen and total both decrease).
	ApplyDeduct(ctx context.Context, productID string, version int64, orderID string, qty int) (ApplyOutcome, error)

	// SaveFreezeFailure atomically records the incoming event's marker and
	// the outgoing StockFreezeFailed outbox row. Returns false when the
	// marker already existed.
	SaveFreezeFailure(ctx context.Context, eventID, orderID string, payload []byte) (bool, error)

	Replenish(ctx context.Context, productID string, qty int) error
}
