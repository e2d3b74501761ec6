package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/blackmoney/storefront/internal/cart"
	"github.com/blackmoney/storefront/internal/checkout"
	"github.com/blackmoney/storefront/internal/coupon"
	"github.com/blackmoney/storefront/internal/metrics"
	"github.com/blackmoney/storefront/internal/middleware"
	"github.com/blackmoney/storefront/internal/models"
	"github.com/blackmoney/storefront/internal/payment"
	"github.com/blackmoney/storefront/internal/pricing"
	"github.com/blackmoney/storefront/internal/wishlist"
	"github.com/blackmoney/storefront/pkg/config"
)

// TrackingFetcher returns the delivery history for an order.
type TrackingFetcher interface {
	Tracking(ctx context.Context, orderID string) ([]models.TrackingEvent, error)
}

// App holds application dependencies
type App struct {
	config       *config.Config
	metrics      *metrics.AppMetrics
	cart         *cart.Store
	wishlist     *wishlist.Store
	orchestrator *checkout.Orchestrator
	coupons      coupon.Resolver
	settings     checkout.SettingsFetcher
	tracking     TrackingFetcher

	mu       sync.RWMutex
	sessions map[string]*checkout.Session
}

// NewApp creates a new application instance
func NewApp(
	cfg *config.Config,
	m *metrics.AppMetrics,
	cs *cart.Store,
	ws *wishlist.Store,
	orch *checkout.Orchestrator,
	resolver coupon.Resolver,
	settings checkout.SettingsFetcher,
	tracking TrackingFetcher,
) *App {
	return &App{
		config:       cfg,
		metrics:      m,
		cart:         cs,
		wishlist:     ws,
		orchestrator: orch,
		coupons:      resolver,
		settings:     settings,
		tracking:     tracking,
		sessions:     make(map[string]*checkout.Session),
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	// Middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.ErrorHandlerMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))

	// API Routes
	api := r.PathPrefix("/api/v1").Subrouter()

	// Cart
	api.HandleFunc("/cart", a.GetCartHandler).Methods("GET")
	api.HandleFunc("/cart", a.ClearCartHandler).Methods("DELETE")
	api.HandleFunc("/cart/items", a.AddToCartHandler).Methods("POST")
	api.HandleFunc("/cart/items/quantity", a.UpdateQuantityHandler).Methods("PUT")
	api.HandleFunc("/cart/items", a.RemoveFromCartHandler).Methods("DELETE")
	api.HandleFunc("/cart/quote", a.QuoteHandler).Methods("POST")

	// Wishlist
	api.HandleFunc("/wishlist", a.GetWishlistHandler).Methods("GET")
	api.HandleFunc("/wishlist", a.AddToWishlistHandler).Methods("POST")
	api.HandleFunc("/wishlist/{productID}", a.RemoveFromWishlistHandler).Methods("DELETE")

	// Checkout
	api.HandleFunc("/checkout", a.StartCheckoutHandler).Methods("POST")
	api.HandleFunc("/checkout/{id}", a.GetCheckoutHandler).Methods("GET")
	api.HandleFunc("/checkout/{id}/address", a.SelectAddressHandler).Methods("POST")
	api.HandleFunc("/checkout/{id}/payment-method", a.SelectPaymentMethodHandler).Methods("POST")
	api.HandleFunc("/checkout/{id}/coupon", a.ApplyCouponHandler).Methods("POST")
	api.HandleFunc("/checkout/{id}/coupon", a.RemoveCouponHandler).Methods("DELETE")
	api.HandleFunc("/checkout/{id}/place", a.PlaceOrderHandler).Methods("POST")
	api.HandleFunc("/checkout/{id}/payment-callback", a.PaymentCallbackHandler).Methods("POST")
	api.HandleFunc("/checkout/{id}/payment-cancel", a.PaymentCancelHandler).Methods("POST")

	// Orders
	api.HandleFunc("/orders/{id}/tracking", a.OrderTrackingHandler).Methods("GET")

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
}

// OrderTrackingHandler handles GET /api/v1/orders/{id}/tracking
func (a *App) OrderTrackingHandler(w http.ResponseWriter, r *http.Request) {
	events, err := a.tracking.Tracking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch tracking")
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetCartHandler handles GET /api/v1/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.CartResponse{
		Items:    a.cart.Items(),
		Subtotal: a.cart.Subtotal(),
	})
}

// AddToCartHandler handles POST /api/v1/cart/items
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	item := models.CartLineItem{
		ProductID: req.ProductID,
		SellerID:  req.SellerID,
		Name:      req.Name,
		UnitPrice: req.Price,
		ImageRef:  req.Image,
		Variant:   models.Variant{Size: req.Size, Color: req.Color},
		Quantity:  req.Quantity,
	}
	if err := a.cart.Add(item); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save cart")
		return
	}

	a.recordCartSize(r)
	respondJSON(w, http.StatusOK, models.CartResponse{Items: a.cart.Items(), Subtotal: a.cart.Subtotal()})
}

// UpdateQuantityHandler handles PUT /api/v1/cart/items/quantity
func (a *App) UpdateQuantityHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	variant := models.Variant{Size: req.Size, Color: req.Color}
	if err := a.cart.UpdateQuantity(req.ProductID, variant, req.Delta); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save cart")
		return
	}

	a.recordCartSize(r)
	respondJSON(w, http.StatusOK, models.CartResponse{Items: a.cart.Items(), Subtotal: a.cart.Subtotal()})
}

// RemoveFromCartHandler handles DELETE /api/v1/cart/items
func (a *App) RemoveFromCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RemoveFromCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	variant := models.Variant{Size: req.Size, Color: req.Color}
	if err := a.cart.Remove(req.ProductID, variant); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save cart")
		return
	}

	a.recordCartSize(r)
	respondJSON(w, http.StatusOK, models.CartResponse{Items: a.cart.Items(), Subtotal: a.cart.Subtotal()})
}

// ClearCartHandler handles DELETE /api/v1/cart
func (a *App) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.cart.Clear(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save cart")
		return
	}
	a.recordCartSize(r)
	respondJSON(w, http.StatusOK, models.CartResponse{Items: a.cart.Items(), Subtotal: decimal.Zero})
}

// QuoteRequest asks for a totals preview, optionally with a coupon.
type QuoteRequest struct {
	CouponCode string `json:"coupon_code,omitempty"`
}

// QuoteHandler handles POST /api/v1/cart/quote. It prices the current
// cart without creating a checkout session.
func (a *App) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	items := a.cart.Items()
	if len(items) == 0 {
		respondError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	settings, err := a.settings.Fetch(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to load platform settings")
		return
	}

	discount := decimal.Zero
	if req.CouponCode != "" {
		result, err := a.coupons.Validate(r.Context(), req.CouponCode, a.cart.Subtotal())
		if err != nil {
			a.respondCouponError(w, r, err)
			return
		}
		discount = result.Discount
	}

	respondJSON(w, http.StatusOK, pricing.ComputeTotals(items, discount, settings))
}

// GetWishlistHandler handles GET /api/v1/wishlist
func (a *App) GetWishlistHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.wishlist.Items())
}

// AddToWishlistHandler handles POST /api/v1/wishlist
func (a *App) AddToWishlistHandler(w http.ResponseWriter, r *http.Request) {
	var item wishlist.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if item.ProductID == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := a.wishlist.Add(item); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save wishlist")
		return
	}
	respondJSON(w, http.StatusOK, a.wishlist.Items())
}

// RemoveFromWishlistHandler handles DELETE /api/v1/wishlist/{productID}
func (a *App) RemoveFromWishlistHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.wishlist.Remove(vars["productID"]); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save wishlist")
		return
	}
	respondJSON(w, http.StatusOK, a.wishlist.Items())
}

// CheckoutView is the API shape of a checkout session.
type CheckoutView struct {
	SessionID      string               `json:"session_id"`
	State          string               `json:"state"`
	PaymentMethod  models.PaymentMethod `json:"payment_method,omitempty"`
	OnlineDisabled bool                 `json:"online_disabled"`
	CouponCode     string               `json:"coupon_code,omitempty"`
	Totals         models.Totals        `json:"totals"`
}

// StartCheckoutHandler handles POST /api/v1/checkout
func (a *App) StartCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := a.orchestrator.NewSession(r.Context())
	if err != nil {
		a.respondCheckoutError(w, r, err)
		return
	}

	a.mu.Lock()
	a.sessions[sess.ID] = sess
	a.mu.Unlock()
	a.recordActiveCheckouts(r)

	respondJSON(w, http.StatusCreated, a.viewOf(sess))
}

// GetCheckoutHandler handles GET /api/v1/checkout/{id}
func (a *App) GetCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(r)
	if !ok {
		respondError(w, http.StatusNotFound, "checkout session not found")
		return
	}
	respondJSON(w, http.StatusOK, a.viewOf(sess))
}

// SelectAddressRequest picks a delivery address for a checkout session.
type SelectAddressRequest struct {
	AddressID string `json:"address_id"`
}

// SelectAddressHandler handles POST /api/v1/checkout/{id}/address. It
// resolves and confirms the address in one step.
func (a *App) SelectAddressHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(r)
	if !ok {
		respondError(w, http.StatusNotFound, "checkout session not found")
		return
	}

	var req SelectAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.orchestrator.SelectAddress(r.Context(), sess, req.AddressID); err != nil {
		a.respondCheckoutError(w, r, err)
		return
	}
	if err := a.orchestrator.ConfirmAddress(sess); err != nil {
		a.respondCheckoutError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a.viewOf(sess))
}

// SelectPaymentMethodRequest picks a payment method.
type SelectPaymentMethodRequest struct {
	Method models.PaymentMethod `json:"method"`
}

// SelectPaymentMethodHandler handles POST /api/v1/checkout/{id}/payment-method
func (a *App) SelectPaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(r)
	if !ok {
		respondError(w, http.StatusNotFound, "checkout session not found")
		return
	}

	var req SelectPaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.orchestrator.SelectPaymentMethod(sess, req.Method); err != nil {
		a.respondCheckoutError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a.viewOf(sess))
}

// ApplyCouponRequest applies a coupon code to a checkout session.
type ApplyCouponRequest struct {
	Code string `json:"code"`
}

// ApplyCouponHandler handles POST /api/v1/checkout/{id}/coupon
func (a *App) ApplyCouponHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(r)
	if !ok {
		respondError(w, http.StatusNotFound, "checkout session not found")
		return
	}

	var req ApplyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := a.orchestrator.ApplyCoupon(r.Context(), sess, req.Code)
	if err != nil {
		a.respondCouponError(w, r, err)
		return
	}

	a.metrics.CouponsApplied.Add(r.Context(), 1, metric.WithAttributes(a.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("coupon.code", result.Coupon.Code),
	})...))
	respondJSON(w, http.StatusOK, a.viewOf(sess))
}

// RemoveCouponHandler handles DELETE /api/v1/checkout/{id}/coupon
func (a *App) RemoveCouponHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(r)
	if !ok {
		respondError(w, http.StatusNotFound, "checkout session not found")
		return
	}
	a.orchestrator.RemoveCoupon(sess)
	respondJSON(w, http.StatusOK, a.viewOf(sess))
}

// PlaceOrderHandler handles POST /api/v1/checkout/{id}/place
func (a *App) PlaceOrderHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(r)
	if !ok {
		respondError(w, http.StatusNotFound, "checkout session not found")
		return
	}

	result, err := a.orchestrator.PlaceOrder(r.Context(), sess)
	if errors.Is(err, checkout.ErrOnlineDisabled) {
		a.metrics.GatewayUnavailable.Add(r.Context(), 1, metric.WithAttributes(a.metrics.WithServiceName(nil)...))
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"detail":          "online payments are unavailable, pay on delivery instead",
			"online_disabled": true,
			"payment_method":  models.PaymentCOD,
		})
		return
	}
	if err != nil {
		a.respondCheckoutError(w, r, err)
		return
	}

	if result.Completed {
		a.finishCheckout(r, sess, result.Order)
	}
	respondJSON(w, http.StatusOK, result)
}

// PaymentCallbackHandler handles POST /api/v1/checkout/{id}/payment-callback
func (a *App) PaymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(r)
	if !ok {
		respondError(w, http.StatusNotFound, "checkout session not found")
		return
	}

	var sig payment.SignatureTriple
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := a.orchestrator.ConfirmPayment(r.Context(), sess, sig)
	if err != nil {
		var verr *checkout.VerificationError
		if errors.As(err, &verr) {
			a.metrics.CheckoutFailures.Add(r.Context(), 1, metric.WithAttributes(a.metrics.WithServiceName([]attribute.KeyValue{
				attribute.String("failure.stage", "verification"),
			})...))
			respondError(w, http.StatusBadRequest, verr.Error())
			return
		}
		a.respondCheckoutError(w, r, err)
		return
	}

	a.finishCheckout(r, sess, result.Order)
	respondJSON(w, http.StatusOK, result)
}

// PaymentCancelHandler handles POST /api/v1/checkout/{id}/payment-cancel
func (a *App) PaymentCancelHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(r)
	if !ok {
		respondError(w, http.StatusNotFound, "checkout session not found")
		return
	}

	if err := a.orchestrator.CancelPayment(sess); err != nil {
		a.respondCheckoutError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"detail": "payment cancelled, your order is saved and can be retried",
		"state":  sess.State().String(),
	})
}

func (a *App) session(r *http.Request) (*checkout.Session, bool) {
	id := mux.Vars(r)["id"]
	a.mu.RLock()
	defer a.mu.RUnlock()
	sess, ok := a.sessions[id]
	return sess, ok
}

func (a *App) viewOf(sess *checkout.Session) CheckoutView {
	code, _ := sess.AppliedCoupon()
	return CheckoutView{
		SessionID:      sess.ID,
		State:          sess.State().String(),
		PaymentMethod:  sess.PaymentMethod(),
		OnlineDisabled: sess.OnlineDisabled(),
		CouponCode:     code,
		Totals:         a.orchestrator.Quote(sess),
	}
}

// finishCheckout records the placement metrics and destroys the
// completed session. A finished checkout is not retrievable afterwards.
func (a *App) finishCheckout(r *http.Request, sess *checkout.Session, order *models.Order) {
	a.mu.Lock()
	delete(a.sessions, sess.ID)
	a.mu.Unlock()

	ctx := r.Context()
	attrs := []attribute.KeyValue{
		attribute.String("payment.method", string(sess.PaymentMethod())),
	}
	a.metrics.OrdersPlaced.Add(ctx, 1, metric.WithAttributes(a.metrics.WithServiceName(attrs)...))
	if order != nil {
		amount, _ := order.TotalAmount.Float64()
		a.metrics.RevenueTotal.Add(ctx, amount, metric.WithAttributes(a.metrics.WithServiceName(attrs)...))
	}
	a.recordCartSize(r)
	a.recordActiveCheckouts(r)
}

func (a *App) recordCartSize(r *http.Request) {
	a.metrics.CartItemsCount.Record(r.Context(), int64(a.cart.Len()), metric.WithAttributes(a.metrics.WithServiceName(nil)...))
}

func (a *App) recordActiveCheckouts(r *http.Request) {
	a.mu.RLock()
	active := 0
	for _, sess := range a.sessions {
		if !sess.State().IsTerminal() {
			active++
		}
	}
	a.mu.RUnlock()
	a.metrics.ActiveCheckouts.Record(r.Context(), int64(active), metric.WithAttributes(a.metrics.WithServiceName(nil)...))
}

// respondCouponError maps coupon resolution failures to responses and
// records the rejection.
func (a *App) respondCouponError(w http.ResponseWriter, r *http.Request, err error) {
	var rejected *coupon.RejectedError
	if errors.As(err, &rejected) {
		a.metrics.CouponsRejected.Add(r.Context(), 1, metric.WithAttributes(a.metrics.WithServiceName([]attribute.KeyValue{
			attribute.String("coupon.code", rejected.Code),
		})...))
		respondError(w, http.StatusBadRequest, rejected.Error())
		return
	}
	respondError(w, http.StatusBadGateway, "coupon service unavailable")
}

// respondCheckoutError maps orchestrator errors to HTTP statuses.
func (a *App) respondCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrNoAddress),
		errors.Is(err, checkout.ErrNoPaymentMethod),
		errors.Is(err, checkout.ErrOnlineDisabled):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrInvalidState):
		respondError(w, http.StatusConflict, err.Error())
	default:
		a.metrics.CheckoutFailures.Add(r.Context(), 1, metric.WithAttributes(a.metrics.WithServiceName([]attribute.KeyValue{
			attribute.String("failure.stage", "placement"),
		})...))
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
