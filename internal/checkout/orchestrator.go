package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blackmoney/storefront/internal/cart"
	"github.com/blackmoney/storefront/internal/coupon"
	"github.com/blackmoney/storefront/internal/models"
	"github.com/blackmoney/storefront/internal/payment"
	"github.com/blackmoney/storefront/internal/pricing"
)

// State of a checkout session.
type State string

const (
	StateAddressSelection State = "ADDRESS_SELECTION"
	StatePaymentSelection State = "PAYMENT_SELECTION"
	StatePlacing          State = "PLACING"
	StatePaymentPending   State = "PAYMENT_PENDING"
	StateCompleted        State = "COMPLETED"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted
}

func (s State) String() string {
	return string(s)
}

// Validation errors surfaced inline to the user. Transition failures
// leave the session in its current state; nothing retries automatically.
var (
	ErrNoAddress        = errors.New("select a delivery address")
	ErrNoPaymentMethod  = errors.New("select a payment method")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidState     = errors.New("operation not allowed in current checkout state")
	ErrOnlineDisabled   = errors.New("online payment is not available, use cash on delivery")
	ErrPaymentCancelled = errors.New("payment cancelled")
)

// VerificationError is the critical reconciliation failure: the gateway
// reported a successful charge but server-side verification rejected it.
// Money may have moved without a confirmed order, so this must surface
// as a persistent, support-escalation message.
type VerificationError struct {
	OrderID string
	Err     error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment verification failed for order %s: contact support before retrying", e.OrderID)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// OrderCreator is the slice of the order service this core needs.
type OrderCreator interface {
	Create(ctx context.Context, draft models.OrderDraft) (*models.Order, error)
}

// SettingsFetcher provides the platform rate snapshot.
type SettingsFetcher interface {
	Fetch(ctx context.Context) (models.PlatformSettings, error)
}

// AddressBook resolves a stored delivery address by ID.
type AddressBook interface {
	Get(ctx context.Context, id string) (*models.Address, error)
}

// Session is one checkout attempt: ephemeral, in-memory, created when
// checkout starts and discarded on completion or abandonment. All
// mutations go through the Orchestrator, which serializes them so a
// session never has two mutating calls in flight.
type Session struct {
	ID string

	mu             sync.Mutex
	state          State
	settings       models.PlatformSettings
	address        *models.Address
	paymentMethod  models.PaymentMethod
	appliedCoupon  *coupon.Result
	pendingOrder   *models.Order
	gatewaySession *payment.Session
	onlineDisabled bool
	idempotencyKey string
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnlineDisabled reports whether non-COD methods have been disabled
// because the gateway is unavailable.
func (s *Session) OnlineDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onlineDisabled
}

// PaymentMethod returns the currently selected method.
func (s *Session) PaymentMethod() models.PaymentMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentMethod
}

// AppliedCoupon returns the applied coupon code and discount, or
// ("", 0) when none is applied.
func (s *Session) AppliedCoupon() (string, decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appliedCoupon == nil {
		return "", decimal.Zero
	}
	return s.appliedCoupon.Coupon.Code, s.appliedCoupon.Discount
}

// PendingOrder returns the order created for this attempt, if any.
func (s *Session) PendingOrder() *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingOrder
}

// PlacementResult is the outcome of a PlaceOrder call. For COD the
// order is final and Completed is true. For online methods the caller
// must complete the gateway handshake and then confirm or cancel.
type PlacementResult struct {
	Completed bool             `json:"completed"`
	Order     *models.Order    `json:"order"`
	Gateway   *payment.Session `json:"gateway,omitempty"`
}

// Orchestrator sequences address selection, payment method selection,
// order creation, the optional gateway round trip, and the cart clear.
type Orchestrator struct {
	cart      *cart.Store
	coupons   coupon.Resolver
	orders    OrderCreator
	payments  payment.Adapter
	settings  SettingsFetcher
	addresses AddressBook
}

func NewOrchestrator(
	cartStore *cart.Store,
	coupons coupon.Resolver,
	orders OrderCreator,
	payments payment.Adapter,
	settings SettingsFetcher,
	addresses AddressBook,
) *Orchestrator {
	return &Orchestrator{
		cart:      cartStore,
		coupons:   coupons,
		orders:    orders,
		payments:  payments,
		settings:  settings,
		addresses: addresses,
	}
}

// NewSession starts a checkout attempt. The platform settings snapshot
// is fetched once here and never re-fetched mid-flow, so every pricing
// computation within the session sees the same rates.
func (o *Orchestrator) NewSession(ctx context.Context) (*Session, error) {
	if o.cart.Len() == 0 {
		return nil, ErrEmptyCart
	}

	settings, err := o.settings.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load platform settings: %w", err)
	}

	return &Session{
		ID:             uuid.NewString(),
		state:          StateAddressSelection,
		settings:       settings,
		idempotencyKey: uuid.NewString(),
	}, nil
}

// SelectAddress resolves the address from the address book and stores
// it on the session.
func (o *Orchestrator) SelectAddress(ctx context.Context, sess *Session, addressID string) error {
	addr, err := o.addresses.Get(ctx, addressID)
	if err != nil {
		return fmt.Errorf("failed to resolve address: %w", err)
	}
	if addr == nil {
		return ErrNoAddress
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != StateAddressSelection && sess.state != StatePaymentSelection {
		return ErrInvalidState
	}
	sess.address = addr
	return nil
}

// ConfirmAddress moves the session from address selection to payment
// selection. Without a selected address the session stays put and the
// error is surfaced.
func (o *Orchestrator) ConfirmAddress(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StateAddressSelection {
		return ErrInvalidState
	}
	if sess.address == nil {
		return ErrNoAddress
	}
	sess.state = StatePaymentSelection
	return nil
}

// SelectPaymentMethod records the chosen method. Online methods are
// refused once the gateway has reported itself unavailable.
func (o *Orchestrator) SelectPaymentMethod(sess *Session, method models.PaymentMethod) error {
	if !method.Valid() {
		return fmt.Errorf("unknown payment method %q", method)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StatePaymentSelection {
		return ErrInvalidState
	}
	if method.Online() && sess.onlineDisabled {
		return ErrOnlineDisabled
	}
	sess.paymentMethod = method
	return nil
}

// ApplyCoupon validates the code against the current cart subtotal and
// stores the result on the session. Validation does not consume a use.
func (o *Orchestrator) ApplyCoupon(ctx context.Context, sess *Session, code string) (*coupon.Result, error) {
	subtotal := o.cart.Subtotal()

	result, err := o.coupons.Validate(ctx, code, subtotal)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state == StatePlacing || sess.state.IsTerminal() {
		return nil, ErrInvalidState
	}
	sess.appliedCoupon = result
	return result, nil
}

// RemoveCoupon clears the applied coupon. Purely session-local: there
// is no server-side release call to make.
func (o *Orchestrator) RemoveCoupon(sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.appliedCoupon = nil
}

// Quote computes the current totals for the session from the live cart
// contents, the applied discount, and the settings snapshot.
func (o *Orchestrator) Quote(sess *Session) models.Totals {
	items := o.cart.Items()

	sess.mu.Lock()
	discount := decimal.Zero
	if sess.appliedCoupon != nil {
		discount = sess.appliedCoupon.Discount
	}
	settings := sess.settings
	sess.mu.Unlock()

	return pricing.ComputeTotals(items, discount, settings)
}

// PlaceOrder drives the payment-selection to placing transition.
//
// Exactly one order is created per checkout attempt: if a previous
// PlaceOrder already created one (for example the gateway modal was
// dismissed and the user retries), that pending order is reused rather
// than a duplicate being created.
//
// COD completes immediately and clears the cart. Online methods return
// a gateway session for the caller to drive; the session parks in
// PaymentPending until ConfirmPayment or CancelPayment.
func (o *Orchestrator) PlaceOrder(ctx context.Context, sess *Session) (*PlacementResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StatePaymentSelection {
		return nil, ErrInvalidState
	}
	if sess.address == nil {
		return nil, ErrNoAddress
	}
	if sess.paymentMethod == "" {
		return nil, ErrNoPaymentMethod
	}

	items := o.cart.Items()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	discount := decimal.Zero
	couponCode := ""
	if sess.appliedCoupon != nil {
		discount = sess.appliedCoupon.Discount
		couponCode = sess.appliedCoupon.Coupon.Code
	}
	totals := pricing.ComputeTotals(items, discount, sess.settings)

	sess.state = StatePlacing

	order := sess.pendingOrder
	if order != nil && !order.TotalAmount.Equal(totals.Total) {
		// The cart or coupon changed between attempts. The stale order
		// must not be charged at the new amount, so a fresh one is
		// created for this total.
		log.Printf("checkout %s: total changed from %s to %s, replacing pending order %s",
			sess.ID, order.TotalAmount, totals.Total, order.ID)
		order = nil
		sess.pendingOrder = nil
	}
	if order == nil {
		created, err := o.orders.Create(ctx, models.OrderDraft{
			Items:           items,
			TotalAmount:     totals.Total,
			ShippingAddress: *sess.address,
			CouponCode:      couponCode,
			IdempotencyKey:  sess.idempotencyKey,
		})
		if err != nil {
			sess.state = StatePaymentSelection
			return nil, fmt.Errorf("failed to place order: %w", err)
		}
		order = created
		sess.pendingOrder = order
	} else {
		log.Printf("checkout %s: reusing pending order %s", sess.ID, order.ID)
	}

	if sess.paymentMethod == models.PaymentCOD {
		return o.complete(sess, order)
	}

	gwSess, err := o.payments.CreateSession(ctx, totals.Total, order.ID)
	if errors.Is(err, payment.ErrGatewayUnavailable) {
		// Gateway is not configured: disable every non-COD method and
		// force COD. The pending order survives for the next attempt.
		sess.onlineDisabled = true
		sess.paymentMethod = models.PaymentCOD
		sess.state = StatePaymentSelection
		log.Printf("checkout %s: gateway unavailable, forcing cod", sess.ID)
		return nil, ErrOnlineDisabled
	}
	if err != nil {
		sess.state = StatePaymentSelection
		return nil, fmt.Errorf("failed to create gateway session: %w", err)
	}

	sess.gatewaySession = gwSess
	sess.state = StatePaymentPending
	return &PlacementResult{Order: order, Gateway: gwSess}, nil
}

// ConfirmPayment submits the gateway's signature triple for
// verification. Success completes the checkout and clears the cart.
// Failure after a successful charge is critical and is returned as a
// *VerificationError; the session drops back to payment selection.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, sess *Session, sig payment.SignatureTriple) (*PlacementResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StatePaymentPending || sess.pendingOrder == nil {
		return nil, ErrInvalidState
	}

	if err := o.payments.Verify(ctx, sig, sess.pendingOrder.ID); err != nil {
		sess.state = StatePaymentSelection
		sess.gatewaySession = nil
		return nil, &VerificationError{OrderID: sess.pendingOrder.ID, Err: err}
	}

	return o.complete(sess, sess.pendingOrder)
}

// CancelPayment handles the user dismissing the gateway. It is a
// failed transition, not a rollback: the created order stays pending
// and is reused if the user retries.
func (o *Orchestrator) CancelPayment(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StatePaymentPending {
		return ErrInvalidState
	}
	sess.state = StatePaymentSelection
	sess.gatewaySession = nil
	return nil
}

// complete finalizes the checkout. Caller holds sess.mu.
func (o *Orchestrator) complete(sess *Session, order *models.Order) (*PlacementResult, error) {
	if err := o.cart.Clear(); err != nil {
		log.Printf("checkout %s: failed to clear cart after order %s: %v", sess.ID, order.ID, err)
	}
	sess.state = StateCompleted
	sess.pendingOrder = nil
	sess.gatewaySession = nil
	return &PlacementResult{Completed: true, Order: order}, nil
}
