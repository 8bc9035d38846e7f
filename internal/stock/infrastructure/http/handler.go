package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/orderflow/orderflow/internal/stock/application"
	"github.com/orderflow/orderflow/internal/stock/domain"
)

type Handler struct {
	log *slog.Logger
	svc *application.Service
}

func NewHandler(log *slog.Logger, svc *application.Service) *Handler {
	return &Handler{log: log, svc: svc}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/stock/{productID}", h.getStock)
	r.Post("/stock/check", h.checkStock)
	r.Post("/stock/{productID}/replenish", h.replenish)
	return r
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	rec, err := h.svc.Get(r.Context(), productID)
	if errors.Is(err, pgx.ErrNoRows) {
		http.Error(w, "unknown product", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":    rec.ProductID,
		"total_qty":     rec.TotalQty,
		"frozen_qty":    rec.FrozenQty,
		"available_qty": rec.AvailableQty,
	})
}

type checkReq struct {
	Items map[string]int `json:"items"`
}

type checkResp struct {
	Available bool                      `json:"available"`
	Short     []domain.InsufficientLine `json:"short,omitempty"`
}

// checkStock is the read-only enrichment probe for the order service; it is
// advisory only, the freeze on OrderCreated remains the authority.
func (h *Handler) checkStock(w http.ResponseWriter, r *http.Request) {
	var req checkReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	ok, short, err := h.svc.Check(r.Context(), req.Items)
	if errors.Is(err, pgx.ErrNoRows) {
		http.Error(w, "unknown product", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, checkResp{Available: ok, Short: short})
}

type replenishReq struct {
	Qty int `json:"qty"`
}

func (h *Handler) replenish(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	var req replenishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.svc.Replenish(r.Context(), productID, req.Qty); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
