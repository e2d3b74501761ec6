package pricing

import (
	"github.com/blackmoney/storefront/internal/models"
	"github.com/shopspring/decimal"
)

// Free shipping applies above this subtotal; below it a flat fee is
// charged. These are domain constants, not configurable.
var (
	FreeShippingThreshold = decimal.NewFromInt(500)
	FlatShippingFee       = decimal.NewFromInt(50)
)

var hundred = decimal.NewFromInt(100)

// Subtotal sums unit price x quantity over all line items.
func Subtotal(items []models.CartLineItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subtotal
}

// ShippingFor returns the shipping charge for a subtotal.
func ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(FreeShippingThreshold) {
		return decimal.Zero
	}
	return FlatShippingFee
}

// ComputeTotals derives shipping, GST and the grand total from the cart
// contents, an already-resolved coupon discount, and the platform rate
// snapshot. The total is floored at zero: a discount larger than
// subtotal+shipping+GST never produces a negative amount payable.
func ComputeTotals(items []models.CartLineItem, discount decimal.Decimal, settings models.PlatformSettings) models.Totals {
	subtotal := Subtotal(items)
	shipping := ShippingFor(subtotal)
	gst := subtotal.Mul(settings.GSTPercentage).Div(hundred)

	total := subtotal.Add(shipping).Add(gst).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return models.Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		GST:      gst,
		Discount: discount,
		Total:    total,
	}
}

// SellerPayout computes the seller's share of an order amount after the
// platform and promotion fees are deducted. Fees round to two places,
// matching how they are persisted upstream.
func SellerPayout(orderAmount decimal.Decimal, settings models.PlatformSettings) models.PayoutBreakdown {
	platformFee := orderAmount.Mul(settings.PlatformFeePercentage).Div(hundred).Round(2)
	promotionFee := orderAmount.Mul(settings.PromotionFeePercentage).Div(hundred).Round(2)

	return models.PayoutBreakdown{
		OrderAmount:  orderAmount,
		PlatformFee:  platformFee,
		PromotionFee: promotionFee,
		NetPayout:    orderAmount.Sub(platformFee).Sub(promotionFee),
	}
}
