package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/order/application"
	"github.com/orderflow/orderflow/internal/order/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) CreateWithOutbox(ctx context.Context, o domain.Order, payload []byte) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, order_no, user_id, total_cents, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.OrderNo, o.UserID, o.TotalCents, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, product_id, qty, price_cents)
			VALUES ($1,$2,$3,$4)`,
			o.ID, item.ProductID, item.Qty, item.PriceCents)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, topic, type, payload, status)
		VALUES ('order', $1, $2, $3, $4, 'pending')`,
		o.ID, events.TopicOrderEvents, events.TypeOrderCreated, payload)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_no, user_id, total_cents, status, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.OrderNo, &o.UserID, &o.TotalCents, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, application.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, qty, price_cents FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Qty, &item.PriceCents); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (r *Repository) Complete(ctx context.Context, orderID, eventID string) (application.TransitionOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return application.NoMatch, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	dup, err := insertMarker(ctx, tx, eventID)
	if err != nil {
		return application.NoMatch, err
	}
	if dup {
		return application.Duplicate, tx.Commit(ctx)
	}

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$1, updated_at=now()
		WHERE id=$2 AND status = ANY($3)`,
		domain.StatusCompleted, orderID,
		[]string{string(domain.StatusPendingPayment), string(domain.StatusPaid)})
	if err != nil {
		return application.NoMatch, err
	}
	// The marker commits either way; a redelivery must not re-evaluate.
	outcome := application.NoMatch
	if ct.RowsAffected() == 1 {
		outcome = application.Applied
	}
	return outcome, tx.Commit(ctx)
}

func (r *Repository) Cancel(ctx context.Context, orderID, eventID string, payload []byte) (application.TransitionOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return application.NoMatch, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if eventID != "" {
		dup, err := insertMarker(ctx, tx, eventID)
		if err != nil {
			return application.NoMatch, err
		}
		if dup {
			return application.Duplicate, tx.Commit(ctx)
		}
	}

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$1, updated_at=now()
		WHERE id=$2 AND status=$3`,
		domain.StatusCancelled, orderID, domain.StatusPendingPayment)
	if err != nil {
		return application.NoMatch, err
	}
	if ct.RowsAffected() == 0 {
		return application.NoMatch, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, topic, type, payload, status)
		VALUES ('order', $1, $2, $3, $4, 'pending')`,
		orderID, events.TopicOrderEvents, events.TypeOrderCancelled, payload)
	if err != nil {
		return application.NoMatch, err
	}
	if err := tx.Commit(ctx); err != nil {
		return application.NoMatch, err
	}
	return application.Applied, nil
}

func (r *Repository) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	// Limit applies to orders, not joined rows, so multi-line orders keep
	// all their items.
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.order_no, o.user_id, o.total_cents, o.status, o.created_at, o.updated_at,
		       i.product_id, i.qty, i.price_cents
		FROM (
			SELECT id, order_no, user_id, total_cents, status, created_at, updated_at
			FROM orders
			WHERE status=$1 AND created_at < $2
			ORDER BY created_at, id
			LIMIT $3
		) o
		JOIN order_items i ON i.order_id = o.id
		ORDER BY o.created_at, o.id`,
		domain.StatusPendingPayment, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[string]*domain.Order{}
	var order []string
	for rows.Next() {
		var o domain.Order
		var item domain.OrderItem
		if err := rows.Scan(&o.ID, &o.OrderNo, &o.UserID, &o.TotalCents, &o.Status, &o.CreatedAt, &o.UpdatedAt,
			&item.ProductID, &item.Qty, &item.PriceCents); err != nil {
			return nil, err
		}
		existing, ok := byID[o.ID]
		if !ok {
			byID[o.ID] = &o
			order = append(order, o.ID)
			existing = byID[o.ID]
		}
		existing.Items = append(existing.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Order, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (r *Repository) CountCancelledSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM orders WHERE status=$1 AND updated_at >= $2`,
		domain.StatusCancelled, since).Scan(&n)
	return n, err
}

// insertMarker records the idempotency marker; true means it already existed.
func insertMarker(ctx context.Context, tx pgx.Tx, eventID string) (bool, error) {
	ct, err := tx.Exec(ctx, `
		INSERT INTO processed_events (event_id, processed_at) VALUES ($1, now())
		ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 0, nil
}
