package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const maxBodyBytes = 1 << 20

var errInvalidItemID = errors.New("itemId must be a string or a number")

type HTTPHandler struct {
	carts           *service.CartService
	checkout        *service.CheckoutService
	webhooks        *service.WebhookService
	catalog         port.Catalog
	metrics         *metrics.Metrics
	provider        string
	signatureHeader string
}

// NewHTTPHandler wires the services behind the JSON API. provider names the
// only accepted /webhooks/{provider} path segment and signatureHeader its
// signature header.
func NewHTTPHandler(carts *service.CartService, checkout *service.CheckoutService, webhooks *service.WebhookService, catalog port.Catalog, m *metrics.Metrics, provider, signatureHeader string) *HTTPHandler {
	return &HTTPHandler{
		carts:           carts,
		checkout:        checkout,
		webhooks:        webhooks,
		catalog:         catalog,
		metrics:         m,
		provider:        strings.ToLower(provider),
		signatureHeader: signatureHeader,
	}
}

// itemID accepts both JSON strings and numbers, since provider ids are numeric.
type itemID string

func (id *itemID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = itemID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errInvalidItemID
	}
	*id = itemID(n.String())
	return nil
}

type cartLineRequest struct {
	ItemID   itemID `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// addToCartRequest is either a single {itemId, quantity} add or a full
// {userId, items} replacement.
type addToCartRequest struct {
	ItemID   itemID            `json:"itemId"`
	Quantity int               `json:"quantity"`
	UserID   string            `json:"userId"`
	Items    []cartLineRequest `json:"items"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

type checkoutRequest struct {
	Address *domain.Address `json:"address"`
}

type checkoutResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Total   int64  `json:"total"`
	Message string `json:"message"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error      string                `json:"error"`
	Actionable string                `json:"actionable,omitempty"`
	Missing    []string              `json:"missing,omitempty"`
	Details    []domain.StockProblem `json:"details,omitempty"`
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.FetchAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetCart returns the stored cart. With ?validate=true every line is also
// checked against the live catalog.
func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var view domain.CartView
	var err error
	if r.URL.Query().Get("validate") == "true" {
		view, err = h.carts.ValidateCart(r.Context(), userID)
	} else {
		view, err = h.carts.Snapshot(r.Context(), userID)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) GetCartByID(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.SnapshotByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload. Provide itemId and quantity >= 1."})
		return
	}

	if req.Items != nil {
		userID := req.UserID
		if userID == "" {
			userID = UserIDFromContext(r.Context())
		}
		lines := make([]service.ItemRequest, 0, len(req.Items))
		for _, it := range req.Items {
			lines = append(lines, service.ItemRequest{ProductID: string(it.ItemID), Quantity: it.Quantity})
		}
		view, err := h.carts.ReplaceCart(r.Context(), userID, lines)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if req.ItemID == "" || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload. Provide itemId and quantity >= 1."})
		return
	}

	view, err := h.carts.AddItem(r.Context(), UserIDFromContext(r.Context()), string(req.ItemID), req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Quantity == nil || *req.Quantity < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid quantity"})
		return
	}

	view, err := h.carts.SetQuantity(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"), *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if _, err := h.carts.RemoveItem(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload"})
		return
	}

	order, err := h.checkout.Checkout(r.Context(), UserIDFromContext(r.Context()), req.Address)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{
		Success: true,
		OrderID: order.ID,
		Total:   order.Total,
		Message: "Order confirmed",
	})
}

// Webhook ingests a provider catalog notification. The body is read raw so the
// signature is checked against the exact bytes that were signed.
func (h *HTTPHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if strings.ToLower(chi.URLParam(r, "provider")) != h.provider {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown provider"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.metrics.WebhookIngests.WithLabelValues("malformed").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}

	result, err := h.webhooks.Ingest(r.Context(), body, h.signature(r))
	switch {
	case errors.Is(err, service.ErrInvalidSignature):
		h.metrics.WebhookIngests.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
	case errors.Is(err, domain.ErrMalformedPayload):
		h.metrics.WebhookIngests.WithLabelValues("malformed").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
	case err != nil:
		h.metrics.WebhookIngests.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("webhook processing failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to process webhook"})
	case result.Duplicate:
		h.metrics.WebhookIngests.WithLabelValues("duplicate").Inc()
		w.WriteHeader(http.StatusNoContent)
	default:
		h.metrics.WebhookIngests.WithLabelValues("accepted").Inc()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *HTTPHandler) signature(r *http.Request) string {
	for _, name := range []string{h.signatureHeader, "X-Hub-Signature", "X-Signature"} {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// writeError maps service errors to status codes. Anything unrecognised is
// logged and reported as a generic 500.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *service.InsufficientStockError
	var conflict *service.StockConflictError
	var unknown *service.UnknownItemsError
	var declined *service.PaymentDeclinedError

	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid quantity"})
	case errors.Is(err, service.ErrInvalidAddress):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid address", Actionable: "Provide a valid shipping address"})
	case errors.Is(err, service.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Empty cart", Actionable: "Add items to cart before checkout"})
	case errors.Is(err, port.ErrCatalogUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Product service unavailable", Actionable: "Try again later"})
	case errors.Is(err, port.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Item not found"})
	case errors.Is(err, port.ErrCartNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Cart not found"})
	case errors.As(err, &insufficient):
		msg := "Insufficient stock"
		if insufficient.Cumulative {
			msg = "Insufficient stock for requested total quantity"
		}
		writeJSON(w, http.StatusConflict, errorResponse{Error: msg, Actionable: insufficient.Actionable()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "Stock issues", Details: conflict.Problems})
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Some cart items are not available in product service", Missing: unknown.ProductIDs})
	case errors.As(err, &declined):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: "Payment failed", Actionable: "Use a different payment method"})
	default:
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
