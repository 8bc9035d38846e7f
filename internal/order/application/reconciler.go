package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/orderflow/orderflow/internal/events"
)

// Reconciler guarantees liveness: orders that never receive a payment
// outcome are cancelled after a deadline. Each row is handled with the same
// CAS discipline as the orchestrator, so the sweep is safe to run
// concurrently with payment processing and with itself.
type Reconciler struct {
	log      *slog.Logger
	repo     OrderRepository
	producer string
	interval time.Duration
	deadline time.Duration
	batch    int
	now      func() time.Time
}

func NewReconciler(log *slog.Logger, repo OrderRepository, producer string, interval, deadline time.Duration, batch int) *Reconciler {
	return &Reconciler{
		log:      log,
		repo:     repo,
		producer: producer,
		interval: interval,
		deadline: deadline,
		batch:    batch,
		now:      time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopping")
			return nil
		case <-t.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Error("reconcile sweep failed", "err", err)
			}
		}
	}
}

// Sweep cancels stale unpaid orders and returns how many it cancelled. A
// zero-row CAS means the order was concurrently paid or already cancelled;
// those are skipped, never forced.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.deadline)
	stale, err := r.repo.FindExpired(ctx, cutoff, r.batch)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, o := range stale {
		payload := events.OrderCancelled{
			OrderID: o.ID,
			OrderNo: o.OrderNo,
			Reason:  "payment deadline exceeded",
			Items:   o.QtyMap(),
		}
		env, err := events.NewEnvelope(events.TypeOrderCancelled, r.producer, payload)
		if err != nil {
			return cancelled, err
		}
		outcome, err := r.repo.Cancel(ctx, o.ID, "", events.MustMarshal(env))
		if err != nil {
			r.log.Error("timeout cancel failed", "order_id", o.ID, "err", err)
			continue
		}
		switch outcome {
		case Applied:
			cancelled++
			r.log.Info("stale order cancelled", "order_id", o.ID, "age", r.now().UTC().Sub(o.CreatedAt).String())
		case NoMatch:
			r.log.Info("stale order concurrently resolved, skipped", "order_id", o.ID)
		}
	}
	if len(stale) > 0 {
		r.log.Info("reconcile sweep done", "scanned", len(stale), "cancelled", cancelled)
	}
	return cancelled, nil
}

// RunDailyStats logs the cancellation count once a day. Observability only.
func (r *Reconciler) RunDailyStats(ctx context.Context) error {
	t := time.NewTicker(24 * time.Hour)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			since := r.now().UTC().Add(-24 * time.Hour)
			n, err := r.repo.CountCancelledSince(ctx, since)
			if err != nil {
				r.log.Error("cancellation stats failed", "err", err)
				continue
			}
			r.log.Info("orders cancelled last 24h", "count", n)
		}
	}
}
