package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/blackmoney/storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderClientCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var draft models.OrderDraft
		require.NoError(t, json.NewDecoder(r.Body).Decode(&draft))
		assert.Len(t, draft.Items, 1)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.Order{ID: "ord-1", Status: "pending", TotalAmount: draft.TotalAmount})
	}))
	defer srv.Close()

	oc := NewOrderClient(NewBase(srv.URL, "tok", srv.Client()))
	order, err := oc.Create(context.Background(), models.OrderDraft{
		Items:       []models.CartLineItem{{ProductID: "A", Quantity: 1, UnitPrice: decimal.NewFromInt(100)}},
		TotalAmount: decimal.NewFromInt(168),
	})

	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(168)))
}

func TestOrderClientSurfacesServiceDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"cart is empty"}`))
	}))
	defer srv.Close()

	oc := NewOrderClient(NewBase(srv.URL, "", srv.Client()))
	_, err := oc.Create(context.Background(), models.OrderDraft{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cart is empty")
}

func TestSettingsClientFetch(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/platform-settings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"gst_percentage":18,"platform_fee_percentage":2,"promotion_fee_percentage":1,"payment_cycle_days":7}`))
	}))
	defer srv.Close()

	sc := NewSettingsClient(NewBase(srv.URL, "", srv.Client()))
	settings, err := sc.Fetch(context.Background())

	require.NoError(t, err)
	assert.True(t, settings.GSTPercentage.Equal(decimal.NewFromInt(18)))
	assert.Equal(t, 7, settings.PaymentCycleDays)
	assert.Equal(t, int64(1), calls.Load())
}

func TestAddressClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"a1","name":"Asha","is_default":true},{"id":"a2","name":"Ravi"}]`))
	}))
	defer srv.Close()

	ac := NewAddressClient(NewBase(srv.URL, "", srv.Client()))

	addr, err := ac.Get(context.Background(), "a2")
	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.Equal(t, "Ravi", addr.Name)

	missing, err := ac.Get(context.Background(), "zz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
