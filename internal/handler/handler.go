// Package handler exposes the catalog and checkout over HTTP.
package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/petalcraft/checkout/internal/domain/auth"
	"github.com/petalcraft/checkout/internal/domain/order"
	"github.com/petalcraft/checkout/internal/domain/product"
	"github.com/petalcraft/checkout/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

// Handler serves the public API, delegating pricing and order placement to
// the order service.
type Handler struct {
	products product.Repository
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, orders *order.Service) *Handler {
	return &Handler{
		products: products,
		orders:   orders,
	}
}

// Register mounts the API routes on mux. Every route requires the
// authentication middleware; checkout routes are additionally throttled.
func (h *Handler) Register(mux *http.ServeMux, authn, throttle httpmiddleware.Middleware) {
	mux.Handle("GET /api/products", authn(http.HandlerFunc(h.ListProducts)))
	mux.Handle("POST /api/checkout/quote", authn(throttle(http.HandlerFunc(h.Quote))))
	mux.Handle("POST /api/checkout/orders", authn(throttle(http.HandlerFunc(h.PlaceOrder))))
}

// ListProducts returns the catalog visible to the requester.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := auth.PrincipalFrom(ctx)

	products, err := h.products.List(ctx)
	if err != nil {
		h.internalError(w, r, errors.Wrap(err, "list products"))
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeProducts(e, product.Visible(products, p.AgeVerified))
	writeJSON(w, http.StatusOK, e)
}

// Quote prices a cart without placing an order.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	q, err := h.orders.Quote(r.Context(), req)
	if err != nil {
		h.orderError(w, r, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeQuote(e, q)
	writeJSON(w, http.StatusOK, e)
}

// PlaceOrder prices the cart, persists the order and redeems its coupons.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		h.orderError(w, r, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeOrder(e, o)
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) readRequest(w http.ResponseWriter, r *http.Request) (order.Request, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return order.Request{}, false
	}
	body, err := decodeCheckoutReq(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return order.Request{}, false
	}

	p, _ := auth.PrincipalFrom(r.Context())
	return order.Request{
		Principal:        p,
		Items:            body.Items,
		CouponCodes:      body.CouponCodes,
		ShippingProvider: body.ShippingProvider,
	}, true
}

// orderError maps domain errors to HTTP responses.
func (h *Handler) orderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr  *order.InvalidQuantityError
		pnfErr *order.ProductNotFoundError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr):
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &pnfErr):
		writeError(w, http.StatusUnprocessableEntity, pnfErr.Error())
	case errors.Is(err, order.ErrUnknownShippingProvider), errors.Is(err, order.ErrOrderTooLarge):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrCouponUnavailable):
		writeError(w, http.StatusConflict, "coupon no longer available, please quote again")
	default:
		h.internalError(w, r, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeError(e, status, msg)
	writeJSON(w, status, e)
}
