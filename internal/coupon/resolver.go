package coupon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/blackmoney/storefront/internal/models"
	"github.com/shopspring/decimal"
)

// Result is a successfully validated coupon with its discount amount
// for the order subtotal it was validated against.
type Result struct {
	Discount decimal.Decimal
	Coupon   models.Coupon
}

// Resolver validates a coupon code against an order subtotal.
// Validation does not consume a use: the service only increments a
// coupon's used count at order-creation time, so re-validating before
// placing an order is always safe.
type Resolver interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Result, error)
}

// HTTPResolver validates codes via the coupon service.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(baseURL string, client *http.Client) *HTTPResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPResolver{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type validateResponse struct {
	Valid        bool                `json:"valid"`
	Discount     decimal.Decimal     `json:"discount"`
	Code         string              `json:"code"`
	DiscountType models.DiscountType `json:"discount_type"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Validate canonicalizes the code to uppercase, asks the coupon service
// to validate it for the given subtotal, and clamps the returned
// discount so it never exceeds the order value.
func (r *HTTPResolver) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, &RejectedError{Code: code, Reason: "coupon code is required"}
	}

	endpoint := fmt.Sprintf("%s/coupons/validate/%s?order_amount=%s",
		r.baseURL, url.PathEscape(code), url.QueryEscape(subtotal.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build coupon request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to validate coupon: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Detail == "" {
			er.Detail = "invalid coupon code"
		}
		return nil, &RejectedError{Code: code, Reason: er.Detail}
	default:
		return nil, fmt.Errorf("coupon service returned status %d", resp.StatusCode)
	}

	var vr validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("failed to decode coupon response: %w", err)
	}
	if !vr.Valid {
		return nil, &RejectedError{Code: code, Reason: "invalid coupon code"}
	}

	discount := vr.Discount
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	// Not every deployment echoes the code back; the canonicalized
	// request code must survive into the order draft either way.
	if vr.Code == "" {
		vr.Code = code
	}

	return &Result{
		Discount: discount,
		Coupon: models.Coupon{
			Code:         vr.Code,
			DiscountType: vr.DiscountType,
		},
	}, nil
}
