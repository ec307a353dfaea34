package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"
	"github.com/safar/storefront-api/internal/database"
	"github.com/safar/storefront-api/internal/orders"
	"github.com/safar/storefront-api/internal/pricing"
	"github.com/safar/storefront-api/internal/ratelimit"
	"github.com/safar/storefront-api/internal/store"
	"github.com/safar/storefront-api/internal/vendor"
)

const genericErrorMessage = "An internal error occurred. Please try again later."

// Envelope wraps every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode response")
	}
}

func respondOK(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	respondJSON(w, r, status, Envelope{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string, details any) {
	respondJSON(w, r, status, Envelope{Success: false, Message: message, Errors: details})
}

type stockErrorDetail struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    string `json:"reason"`
}

// writeError maps service errors onto status codes. Anything unrecognised is a 500 whose
// detail is hidden in production.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *orders.ValidationError
		stock      *orders.StockUnavailableError
		transition *orders.InvalidStateTransitionError
		tooMany    *ratelimit.TooManyAttemptsError
		apiErr     *vendor.APIError
	)

	switch {
	case errors.As(err, &validation):
		respondError(w, r, http.StatusBadRequest, "Validation failed", validation.Fields)
	case errors.As(err, &stock):
		respondError(w, r, http.StatusBadRequest, stock.Error(), stockErrorDetail{
			ProductID: stock.ProductID,
			SKU:       stock.SKU,
			Requested: stock.Requested,
			Available: stock.Available,
			Reason:    stock.Reason,
		})
	case errors.As(err, &transition):
		respondError(w, r, http.StatusBadRequest, transition.Error(), nil)
	case errors.As(err, &tooMany):
		w.Header().Set("Retry-After", strconv.Itoa(int(tooMany.RetryAfter.Seconds())))
		respondError(w, r, http.StatusTooManyRequests, "Too many attempts. Please try again later.", nil)
	case errors.Is(err, pricing.ErrInvalidMarkup):
		respondError(w, r, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, store.ErrInvalidCursor):
		respondError(w, r, http.StatusBadRequest, "Invalid cursor", nil)
	case errors.Is(err, database.ErrOrderNotFound):
		respondError(w, r, http.StatusNotFound, "Order not found", nil)
	case errors.Is(err, database.ErrProductNotFound):
		respondError(w, r, http.StatusNotFound, "Product not found", nil)
	case errors.Is(err, database.ErrPricingRuleNotFound):
		respondError(w, r, http.StatusNotFound, "Pricing rule not found", nil)
	case errors.Is(err, database.ErrAddressNotFound), errors.Is(err, database.ErrReservationNotFound):
		respondError(w, r, http.StatusNotFound, "Not found", nil)
	case errors.Is(err, database.ErrOrderBusy):
		respondError(w, r, http.StatusConflict, "The order is being processed. Please retry shortly.", nil)
	case errors.Is(err, database.ErrOptimisticLockFailed):
		respondError(w, r, http.StatusConflict, "The order was modified concurrently. Please retry.", nil)
	case errors.As(err, &apiErr):
		hlog.FromRequest(r).Warn().Err(err).Str("operation", apiErr.Operation).Msg("vendor API error")
		respondError(w, r, http.StatusBadGateway, h.internalMessage("Vendor request failed", err), nil)
	case errors.Is(err, vendor.ErrNotConfigured):
		respondError(w, r, http.StatusServiceUnavailable, "Vendor API is not configured", nil)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		respondError(w, r, http.StatusInternalServerError, h.internalMessage(genericErrorMessage, err), nil)
	}
}

func (h *handler) internalMessage(fallback string, err error) string {
	if h.opts.Production {
		return fallback
	}
	return err.Error()
}
