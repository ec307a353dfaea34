package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/safar/storefront-api/internal/models"
	"github.com/safar/storefront-api/internal/orders"
	"github.com/shopspring/decimal"
)

type markupRequest struct {
	Markup   *decimal.Decimal `json:"markup"`
	Priority int              `json:"priority"`
}

type markupResponse struct {
	Rule             *models.PricingRule `json:"rule"`
	RepricedProducts int                 `json:"repriced_products"`
}

func (h *handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	status := models.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !orders.ValidStatus(status) {
		h.writeError(w, r, &orders.ValidationError{Fields: map[string]string{"status": "unknown order status"}})
		return
	}

	limit := queryInt(r, "limit", 20, 100)
	page, err := h.Orders.ListOrders(r.Context(), status, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Orders retrieved", page)
}

func (h *handler) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "Invalid order ID", nil)
		return
	}

	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if !orders.ValidStatus(req.Status) {
		h.writeError(w, r, &orders.ValidationError{Fields: map[string]string{"status": "unknown order status"}})
		return
	}

	order, err := h.Orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Order status updated", order)
}

func (h *handler) adminRetryReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "Invalid order ID", nil)
		return
	}

	order, err := h.Orders.RetryReservation(r.Context(), id)
	var failure *orders.ReservationFailureError
	if errors.As(err, &failure) && order != nil {
		hlog.FromRequest(r).Warn().Err(failure).Int64("order_id", id).Msg("reservation retry failed")
		respondJSON(w, r, http.StatusAccepted, Envelope{Success: false, Message: h.internalMessage(failure.UserMessage(), failure), Data: order})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Order reserved", order)
}

func (h *handler) adminCreateSalesOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.Submitter.CreateVendorSalesOrder(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Vendor sales orders processed", result)
}

func (h *handler) adminOrderImei(w http.ResponseWriter, r *http.Request) {
	vendorOrderID := strings.TrimSpace(chi.URLParam(r, "vendorOrderId"))
	if vendorOrderID == "" {
		respondError(w, r, http.StatusBadRequest, "Invalid vendor order ID", nil)
		return
	}

	records, err := h.Vendor.GetOrderImeiNumbers(r.Context(), vendorOrderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "IMEI numbers retrieved", records)
}

func (h *handler) adminSpecifications(w http.ResponseWriter, r *http.Request) {
	articleID := strings.TrimSpace(chi.URLParam(r, "articleId"))
	if articleID == "" {
		respondError(w, r, http.StatusBadRequest, "Invalid article ID", nil)
		return
	}

	specs, err := h.Vendor.GetDeviceSpecifications(r.Context(), articleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Specifications retrieved", specs)
}

func (h *handler) adminListPricing(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Pricing.ListRules(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Pricing rules retrieved", rules)
}

func (h *handler) decodeMarkup(w http.ResponseWriter, r *http.Request) (markupRequest, bool) {
	var req markupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return req, false
	}
	if req.Markup == nil {
		h.writeError(w, r, &orders.ValidationError{Fields: map[string]string{"markup": "is required"}})
		return req, false
	}
	return req, true
}

func (h *handler) adminSetGlobalMarkup(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMarkup(w, r)
	if !ok {
		return
	}

	rule, repriced, err := h.Pricing.SetGlobalMarkup(r.Context(), *req.Markup, req.Priority)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Global markup updated", markupResponse{Rule: rule, RepricedProducts: repriced})
}

func (h *handler) adminSetCategoryMarkup(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "Invalid category ID", nil)
		return
	}

	req, ok := h.decodeMarkup(w, r)
	if !ok {
		return
	}

	rule, repriced, err := h.Pricing.SetCategoryMarkup(r.Context(), categoryID, *req.Markup, req.Priority)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Category markup updated", markupResponse{Rule: rule, RepricedProducts: repriced})
}

func (h *handler) adminDeleteCategoryMarkup(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "Invalid category ID", nil)
		return
	}

	repriced, err := h.Pricing.DeleteCategoryRule(r.Context(), categoryID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Category markup removed", markupResponse{RepricedProducts: repriced})
}

func (h *handler) adminSyncProducts(w http.ResponseWriter, r *http.Request) {
	result, err := h.Syncer.Sync(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Products synchronised", result)
}
