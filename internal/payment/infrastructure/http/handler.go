// Package http exposes the payment-gateway callback surface. The gateway is
// an external collaborator; these endpoints only drive the CAS transitions.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/orderflow/internal/payment/application"
)

type Handler struct {
	log    *slog.Logger
	svc    *application.Service
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, svc *application.Service) *Handler {
	return &Handler{
		log:    log,
		svc:    svc,
		tracer: otel.Tracer("payment-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/payments/{id}", h.getPayment)
	r.Post("/payments/{id}/success", h.notifySuccess)
	r.Post("/payments/{id}/fail", h.notifyFailure)
	r.Post("/payments/{id}/refund", h.refund)
	return r
}

type successReq struct {
	Channel       string `json:"channel"`
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) notifySuccess(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentSuccessCallback")
	defer span.End()

	var req successReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TransactionID == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	applied, err := h.svc.Succeed(ctx, chi.URLParam(r, "id"), req.Channel, req.TransactionID)
	h.respond(w, applied, err)
}

type failReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) notifyFailure(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentFailureCallback")
	defer span.End()

	var req failReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	applied, err := h.svc.Fail(ctx, chi.URLParam(r, "id"), req.Reason)
	h.respond(w, applied, err)
}

type refundReq struct {
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentRefund")
	defer span.End()

	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	applied, err := h.svc.Refund(ctx, chi.URLParam(r, "id"), req.TransactionID)
	h.respond(w, applied, err)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, application.ErrNotFound) {
		http.Error(w, "unknown payment", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"payment_id":   p.ID,
		"order_id":     p.OrderID,
		"status":       p.Status,
		"amount_cents": p.AmountCents,
	})
}

// respond reports applied=false for transitions that matched no row; the
// callback is acknowledged either way, since a duplicate notification is a
// success from the gateway's point of view.
func (h *Handler) respond(w http.ResponseWriter, applied bool, err error) {
	if errors.Is(err, application.ErrNotFound) {
		http.Error(w, "unknown payment", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"applied": applied})
}
