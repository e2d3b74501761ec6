package coupon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blackmoney/storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCoupon() models.Coupon {
	return models.Coupon{
		Code:           "SAVE20",
		DiscountType:   models.DiscountPercentage,
		DiscountValue:  decimal.NewFromInt(20),
		MaxDiscount:    decimal.NewFromInt(150),
		MinOrderAmount: decimal.NewFromInt(500),
		ValidFrom:      time.Now().Add(-time.Hour),
		ValidUntil:     time.Now().Add(time.Hour),
		IsActive:       true,
	}
}

func TestApplicable(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		mutate   func(*models.Coupon)
		subtotal int64
		wantErr  error
	}{
		{"valid", func(c *models.Coupon) {}, 1000, nil},
		{"inactive", func(c *models.Coupon) { c.IsActive = false }, 1000, ErrInactive},
		{"expired", func(c *models.Coupon) { c.ValidUntil = now.Add(-time.Minute) }, 1000, ErrOutsideWindow},
		{"not yet valid", func(c *models.Coupon) { c.ValidFrom = now.Add(time.Minute) }, 1000, ErrOutsideWindow},
		{"below minimum", func(c *models.Coupon) {}, 400, ErrBelowMinimum},
		{"usage exhausted", func(c *models.Coupon) { c.UsageLimit = 5; c.UsedCount = 5 }, 1000, ErrUsageExceeded},
		{"usage remaining", func(c *models.Coupon) { c.UsageLimit = 5; c.UsedCount = 4 }, 1000, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCoupon()
			tt.mutate(&c)
			err := Applicable(c, now, decimal.NewFromInt(tt.subtotal))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDiscountPercentageClampedByMax(t *testing.T) {
	c := validCoupon() // 20% capped at 150

	got := Discount(c, decimal.NewFromInt(1000))

	// 20% of 1000 is 200, clamped to the 150 cap.
	assert.True(t, got.Equal(decimal.NewFromInt(150)), "got %s", got)
}

func TestDiscountPercentageUnderCap(t *testing.T) {
	c := validCoupon()

	got := Discount(c, decimal.NewFromInt(600))

	assert.True(t, got.Equal(decimal.NewFromInt(120)), "got %s", got)
}

func TestDiscountFixedClampedToSubtotal(t *testing.T) {
	c := validCoupon()
	c.DiscountType = models.DiscountFixed
	c.DiscountValue = decimal.NewFromInt(500)

	got := Discount(c, decimal.NewFromInt(300))

	assert.True(t, got.Equal(decimal.NewFromInt(300)), "got %s", got)
}

func TestHTTPResolverValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coupons/validate/SAVE20", r.URL.Path)
		assert.Equal(t, "1000", r.URL.Query().Get("order_amount"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid":true,"discount":150,"code":"SAVE20","discount_type":"percentage"}`))
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, srv.Client())
	res, err := r.Validate(context.Background(), "save20", decimal.NewFromInt(1000))

	require.NoError(t, err)
	assert.True(t, res.Discount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "SAVE20", res.Coupon.Code)
}

func TestHTTPResolverFallsBackToRequestCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid":true,"discount":100,"discount_type":"fixed"}`))
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, srv.Client())
	res, err := r.Validate(context.Background(), "save20", decimal.NewFromInt(1000))

	require.NoError(t, err)
	assert.Equal(t, "SAVE20", res.Coupon.Code, "code survives a response that omits it")
}

func TestHTTPResolverRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"Minimum order amount is 500"}`))
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, srv.Client())
	_, err := r.Validate(context.Background(), "SAVE20", decimal.NewFromInt(400))

	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Minimum order amount is 500", rej.Reason)
}

func TestHTTPResolverClampsServerDiscount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid":true,"discount":500,"code":"BIG","discount_type":"fixed"}`))
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, srv.Client())
	res, err := r.Validate(context.Background(), "BIG", decimal.NewFromInt(300))

	require.NoError(t, err)
	assert.True(t, res.Discount.Equal(decimal.NewFromInt(300)), "got %s", res.Discount)
}

func TestHTTPResolverServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, srv.Client())
	_, err := r.Validate(context.Background(), "SAVE20", decimal.NewFromInt(1000))

	require.Error(t, err)
	var rej *RejectedError
	assert.False(t, errors.As(err, &rej), "5xx is a service error, not a rejection")
}
