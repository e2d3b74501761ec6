package coupon

import (
	"errors"
	"time"

	"github.com/blackmoney/storefront/internal/models"
	"github.com/shopspring/decimal"
)

// Rejection reasons for an inapplicable coupon.
var (
	ErrNotFound      = errors.New("coupon not found or inactive")
	ErrInactive      = errors.New("coupon is not active")
	ErrOutsideWindow = errors.New("coupon has expired or not yet valid")
	ErrBelowMinimum  = errors.New("order amount below coupon minimum")
	ErrUsageExceeded = errors.New("coupon usage limit reached")
)

// RejectedError carries the user-facing message for an invalid coupon.
// The reason distinction matters only for the surfaced message; callers
// never retry.
type RejectedError struct {
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	return "coupon " + e.Code + " rejected: " + e.Reason
}

// Applicable checks a coupon against the current time and order
// subtotal. A nil return means the coupon may be applied.
func Applicable(c models.Coupon, now time.Time, subtotal decimal.Decimal) error {
	if !c.IsActive {
		return ErrInactive
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return ErrOutsideWindow
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return ErrBelowMinimum
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return ErrUsageExceeded
	}
	return nil
}

// Discount computes the discount amount for an applicable coupon.
// Fixed discounts never exceed the subtotal; percentage discounts are
// capped at MaxDiscount when set.
func Discount(c models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case models.DiscountPercentage:
		d := subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
		if c.MaxDiscount.IsPositive() && d.GreaterThan(c.MaxDiscount) {
			d = c.MaxDiscount
		}
		return d
	case models.DiscountFixed:
		if c.DiscountValue.GreaterThan(subtotal) {
			return subtotal
		}
		return c.DiscountValue
	default:
		return decimal.Zero
	}
}
