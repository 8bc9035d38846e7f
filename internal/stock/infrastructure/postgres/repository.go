package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/stock/application"
	"github.com/orderflow/orderflow/internal/stock/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Get(ctx context.Context, productID string) (domain.StockRecord, error) {
	var rec domain.StockRecord
	err := r.pool.QueryRow(ctx, `
		SELECT product_id, total_qty, frozen_qty, available_qty, version, updated_at
		FROM stock_records WHERE product_id=$1`, productID).
		Scan(&rec.ProductID, &rec.TotalQty, &rec.FrozenQty, &rec.AvailableQty, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		return domain.StockRecord{}, err
	}
	return rec, nil
}

func (r *Repository) ApplyFreeze(ctx context.Context, productID string, version int64, orderID string, qty int) (application.ApplyOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return application.VersionConflict, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		INSERT INTO reservations (order_id, product_id, qty, status, created_at, updated_at)
		VALUES ($1,$2,$3,'RESERVED',now(),now())
		ON CONFLICT (order_id, product_id) DO NOTHING`,
		orderID, productID, qty)
	if err != nil {
		return application.VersionConflict, err
	}
	if ct.RowsAffected() == 0 {
		// Redelivered line, the earlier freeze stands.
		return application.AlreadyApplied, nil
	}

	ct, err = tx.Exec(ctx, `
		UPDATE stock_records
		SET available_qty = available_qty - $1,
		    frozen_qty    = frozen_qty + $1,
		    version       = version + 1,
		    updated_at    = now()
		WHERE product_id = $2 AND version = $3 AND available_qty >= $1`,
		qty, productID, version)
	if err != nil {
		return application.VersionConflict, err
	}
	if ct.RowsAffected() == 0 {
		return application.VersionConflict, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return application.VersionConflict, err
	}
	return application.Applied, nil
}

func (r *Repository) ApplyRelease(ctx context.Context, productID string, version int64, orderID string, qty int) (application.ApplyOutcome, error) {
	return r.flipAndAdjust(ctx, productID, version, orderID, qty,
		string(domain.ReservationReleased), `
		UPDATE stock_records
		SET frozen_qty    = frozen_qty - $1,
		    available_qty = available_qty + $1,
		    version       = version + 1,
		    updated_at    = now()
		WHERE product_id = $2 AND version = $3 AND frozen_qty >= $1`)
}

func (r *Repository) ApplyDeduct(ctx context.Context, productID string, version int64, orderID string, qty int) (application.ApplyOutcome, error) {
	return r.flipAndAdjust(ctx, productID, version, orderID, qty,
		string(domain.ReservationDeducted), `
		UPDATE stock_records
		SET frozen_qty = frozen_qty - $1,
		    total_qty  = total_qty - $1,
		    version    = version + 1,
		    updated_at = now()
		WHERE product_id = $2 AND version = $3 AND frozen_qty >= $1`)
}

// flipAndAdjust moves a reservation out of RESERVED and adjusts the stock
// row, both or neither. A reservation that is not RESERVED anymore means the
// line was already handled, so nothing is written.
func (r *Repository) flipAndAdjust(ctx context.Context, productID string, version int64, orderID string, qty int, toStatus, adjustSQL string) (application.ApplyOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return application.VersionConflict, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE reservations SET status=$1, updated_at=now()
		WHERE order_id=$2 AND product_id=$3 AND status='RESERVED'`,
		toStatus, orderID, productID)
	if err != nil {
		return application.VersionConflict, err
	}
	if ct.RowsAffected() == 0 {
		return application.AlreadyApplied, nil
	}

	ct, err = tx.Exec(ctx, adjustSQL, qty, productID, version)
	if err != nil {
		return application.VersionConflict, err
	}
	if ct.RowsAffected() == 0 {
		return application.VersionConflict, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return application.VersionConflict, err
	}
	return application.Applied, nil
}

func (r *Repository) SaveFreezeFailure(ctx context.Context, eventID, orderID string, payload []byte) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		INSERT INTO processed_events (event_id, processed_at) VALUES ($1, now())
		ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, topic, type, payload, status)
		VALUES ('stock', $1, $2, $3, $4, 'pending')`,
		orderID, events.TopicStockEvents, events.TypeStockFreezeFailed, payload)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) Replenish(ctx context.Context, productID string, qty int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stock_records (product_id, total_qty, frozen_qty, available_qty, version, updated_at)
		VALUES ($1, $2, 0, $2, 1, now())
		ON CONFLICT (product_id) DO UPDATE SET
			total_qty     = stock_records.total_qty + $2,
			available_qty = stock_records.available_qty + $2,
			version       = stock_records.version + 1,
			updated_at    = now()`,
		productID, qty)
	return err
}
