package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Variant is the (size, color) pair distinguishing otherwise-identical
// product entries. Empty fields normalize to "default" so that identity
// comparisons never depend on how the caller left them blank.
type Variant struct {
	Size  string `json:"size"`
	Color string `json:"color"`
}

// Normalize returns the variant with empty fields replaced by "default".
func (v Variant) Normalize() Variant {
	if v.Size == "" {
		v.Size = "default"
	}
	if v.Color == "" {
		v.Color = "default"
	}
	return v
}

// Equal compares two variants after normalization.
func (v Variant) Equal(other Variant) bool {
	return v.Normalize() == other.Normalize()
}

// CartLineItem is one (product, variant, quantity) entry in a cart.
// Two line items are the same entity iff (ProductID, Variant) are equal.
type CartLineItem struct {
	ProductID string          `json:"product_id"`
	SellerID  string          `json:"seller_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	ImageRef  string          `json:"image,omitempty"`
	Variant   Variant         `json:"variant"`
	Quantity  int             `json:"quantity"`
}

// Address is a delivery target from the address book service.
type Address struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Pincode      string `json:"pincode"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Landmark     string `json:"landmark,omitempty"`
	Type         string `json:"type"` // home, work, other
	IsDefault    bool   `json:"is_default"`
}

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon as served by the coupon service. Codes are unique and
// canonicalized to uppercase.
type Coupon struct {
	Code           string          `json:"code"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	MaxDiscount    decimal.Decimal `json:"max_discount,omitempty"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	ValidFrom      time.Time       `json:"valid_from"`
	ValidUntil     time.Time       `json:"valid_until"`
	IsActive       bool            `json:"is_active"`
	UsageLimit     int             `json:"usage_limit,omitempty"` // 0 means unlimited
	UsedCount      int             `json:"used_count"`
}

// PlatformSettings is the admin-mutable rate snapshot read by every
// pricing computation. Fetched once per checkout session and treated as
// immutable for its duration.
type PlatformSettings struct {
	GSTPercentage          decimal.Decimal `json:"gst_percentage"`
	PlatformFeePercentage  decimal.Decimal `json:"platform_fee_percentage"`
	PromotionFeePercentage decimal.Decimal `json:"promotion_fee_percentage"`
	PaymentCycleDays       int             `json:"payment_cycle_days"`
}

// PaymentMethod selected during checkout.
type PaymentMethod string

const (
	PaymentCOD        PaymentMethod = "cod"
	PaymentCard       PaymentMethod = "card"
	PaymentUPI        PaymentMethod = "upi"
	PaymentNetbanking PaymentMethod = "netbanking"
)

// Online reports whether the method goes through the payment gateway.
func (m PaymentMethod) Online() bool {
	return m == PaymentCard || m == PaymentUPI || m == PaymentNetbanking
}

// Valid reports whether the method is one of the supported values.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m.Online()
}

// Totals is the output of the pricing pipeline. All amounts are exact
// decimals; rounding happens only at presentation boundaries.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	GST      decimal.Decimal `json:"gst"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// PayoutBreakdown is the seller's share of an order after platform and
// promotion fees are deducted.
type PayoutBreakdown struct {
	OrderAmount  decimal.Decimal `json:"order_amount"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	PromotionFee decimal.Decimal `json:"promotion_fee"`
	NetPayout    decimal.Decimal `json:"net_payout"`
}

// OrderDraft is the payload sent to the order service at creation time:
// a snapshot of the cart plus the computed total and shipping address.
type OrderDraft struct {
	Items           []CartLineItem  `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress Address         `json:"shipping_address"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
}

// Order as returned by the order service. Immutable from this core's
// point of view after creation, except for payment finalization.
type Order struct {
	ID            string          `json:"id"`
	Items         []CartLineItem  `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TrackingEvent is one step of an order's delivery history.
type TrackingEvent struct {
	Status    string    `json:"status"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AddToCartRequest is the API payload for adding a line item.
type AddToCartRequest struct {
	ProductID string          `json:"product_id"`
	SellerID  string          `json:"seller_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Quantity  int             `json:"quantity"`
}

// UpdateQuantityRequest adjusts a line item's quantity by a delta.
type UpdateQuantityRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Delta     int    `json:"delta"`
}

// RemoveFromCartRequest deletes exactly one variant line.
type RemoveFromCartRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

// CartResponse is a cart with its computed subtotal.
type CartResponse struct {
	Items    []CartLineItem  `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
