package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/flipzon/flash-sale/internal/core/service"
	"github.com/flipzon/flash-sale/internal/pkg/metrics"
)

type AdmissionService interface {
	Purchase(ctx context.Context, req service.PurchaseRequest) (*service.PurchaseResult, error)
}

type StockInitializer interface {
	InitStock(ctx context.Context, itemID string, quantity int) error
}

type HTTPHandler struct {
	admissions AdmissionService
	seeder     StockInitializer
}

func NewHTTPHandler(admissions AdmissionService, seeder StockInitializer) *HTTPHandler {
	return &HTTPHandler{admissions: admissions, seeder: seeder}
}

type purchaseRequest struct {
	CustomerID string `json:"customer_id"`
	Quantity   int    `json:"quantity"`
	Nonce      string `json:"nonce,omitempty"`
}

type purchaseResponse struct {
	Status    string `json:"status"`
	Remaining int    `json:"remaining"`
}

type rejectResponse struct {
	Reason string `json:"reason"`
}

type initStockRequest struct {
	ItemID string `json:"item_id"`
	Stock  int    `json:"stock"`
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	saleID := r.PathValue("saleID")

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeReject(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.CustomerID == "" || saleID == "" {
		writeReject(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	result, err := h.admissions.Purchase(r.Context(), service.PurchaseRequest{
		SaleID:     saleID,
		CustomerID: req.CustomerID,
		Quantity:   req.Quantity,
		Nonce:      req.Nonce,
	})
	if err != nil {
		status, reason := mapPurchaseError(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("sale_id", saleID).Msg("purchase failed unexpectedly")
		}
		metrics.Admissions.WithLabelValues(reason).Inc()
		writeReject(w, status, reason)
		return
	}

	metrics.Admissions.WithLabelValues("COMMITTED").Inc()
	writeJSON(w, http.StatusOK, purchaseResponse{
		Status:    "committed",
		Remaining: result.Remaining,
	})
}

func mapPurchaseError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, "INVALID_QUANTITY"
	case errors.Is(err, service.ErrSaleInactive):
		return http.StatusBadRequest, "SALE_INACTIVE"
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusBadRequest, "QUOTA_EXCEEDED"
	case errors.Is(err, service.ErrOutOfStock):
		return http.StatusBadRequest, "OUT_OF_STOCK"
	case errors.Is(err, service.ErrContended):
		return http.StatusServiceUnavailable, "CONTENTION"
	case errors.Is(err, service.ErrPersistence):
		return http.StatusServiceUnavailable, "PERSISTENCE_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (h *HTTPHandler) InitStock(w http.ResponseWriter, r *http.Request) {
	var req initStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeReject(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if err := h.seeder.InitStock(r.Context(), req.ItemID, req.Stock); err != nil {
		status, reason := mapPurchaseError(err)
		writeReject(w, status, reason)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "initialized"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeReject(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, rejectResponse{Reason: reason})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
