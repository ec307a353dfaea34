package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/safar/storefront-api/internal/orders"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	if max > 0 && v > max {
		return def
	}
	return v
}

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1, 0)
	pageSize := queryInt(r, "page_size", 20, 100)
	onlyAvailable := r.URL.Query().Get("include_unavailable") != "true"

	result, err := h.Products.ListProducts(r.Context(), page, pageSize, onlyAvailable)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Products retrieved", result)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "Invalid product ID", nil)
		return
	}

	product, err := h.Products.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Product retrieved", product)
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	result, err := h.Orders.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusCreated, "Order created", result)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "Invalid order ID", nil)
		return
	}

	order, err := h.Orders.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Order retrieved", order)
}

// paymentSuccess answers 202 with success=false when the payment was recorded but the vendor
// stock could not be held; the client must not retry the payment.
func (h *handler) paymentSuccess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "Invalid order ID", nil)
		return
	}

	var req struct {
		PaymentReference string `json:"payment_reference"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	order, err := h.Orders.HandlePaymentSuccess(r.Context(), id, req.PaymentReference)
	var failure *orders.ReservationFailureError
	if errors.As(err, &failure) && order != nil {
		respondJSON(w, r, http.StatusAccepted, Envelope{
			Success: false,
			Message: failure.UserMessage(),
			Data:    order,
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Payment confirmed and items reserved", order)
}

func (h *handler) paymentFailed(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "Invalid order ID", nil)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	order, err := h.Orders.HandlePaymentFailure(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Payment failure recorded", order)
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "Invalid order ID", nil)
		return
	}

	order, err := h.Orders.CancelOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	respondOK(w, r, http.StatusOK, "Order cancelled", order)
}
