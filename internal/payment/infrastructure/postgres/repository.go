package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/payment/application"
	"github.com/orderflow/orderflow/internal/payment/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, p domain.Payment, eventID string) (bool, error) {
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

	items, err := json.Marshal(p.Items)
	if err != nil {
		return false, err
	}
	ct, err = tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, order_no, user_id, amount_cents, status, channel, transaction_id, trace_id, items, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,'','',$7,$8,$9,$10)
		ON CONFLICT (trace_id) DO NOTHING`,
		p.ID, p.OrderID, p.OrderNo, p.UserID, p.AmountCents, p.Status, p.TraceID, items, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

const selectPayment = `
	SELECT id, order_id, order_no, user_id, amount_cents, status, channel, transaction_id, refund_transaction_id, fail_reason, trace_id, items, created_at, updated_at
	FROM payments `

func (r *Repository) Get(ctx context.Context, paymentID string) (domain.Payment, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectPayment+`WHERE id=$1`, paymentID))
}

func (r *Repository) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectPayment+`WHERE order_id=$1`, orderID))
}

func (r *Repository) scanOne(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	var items []byte
	err := row.Scan(&p.ID, &p.OrderID, &p.OrderNo, &p.UserID, &p.AmountCents, &p.Status,
		&p.Channel, &p.TransactionID, &p.RefundTransactionID, &p.FailReason, &p.TraceID,
		&items, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, application.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	if err := json.Unmarshal(items, &p.Items); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

func (r *Repository) MarkSucceeded(ctx context.Context, paymentID, transactionID, channel string, payload []byte) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderID string
	err = tx.QueryRow(ctx, `
		UPDATE payments
		SET status=$1, transaction_id=$2, channel=$3, updated_at=now()
		WHERE id=$4 AND status=$5
		RETURNING order_id`,
		domain.StatusSuccess, transactionID, channel, paymentID, domain.StatusPending).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already transitioned, or in an unexpected state; nothing committed.
		return 0, tx.Commit(ctx)
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, topic, type, payload, status)
		VALUES ('payment', $1, $2, $3, $4, 'pending')`,
		orderID, events.TopicPaymentEvents, events.TypePaymentSucceeded, payload)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return 1, nil
}

func (r *Repository) MarkFailed(ctx context.Context, paymentID, reason string) (int64, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE payments SET status=$1, fail_reason=$2, updated_at=now()
		WHERE id=$3 AND status=$4`,
		domain.StatusFailed, reason, paymentID, domain.StatusPending)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *Repository) MarkRefunded(ctx context.Context, paymentID, refundTransactionID string) (int64, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE payments SET status=$1, refund_transaction_id=$2, updated_at=now()
		WHERE id=$3 AND status=$4`,
		domain.StatusRefunded, refundTransactionID, paymentID, domain.StatusSuccess)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
