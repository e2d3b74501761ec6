package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/create-order", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ord-1", req["order_id"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"razorpay_order_id":"rzp_1","amount":70800,"currency":"INR","key_id":"key_test","internal_order_id":"ord-1"}`))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, "tok", srv.Client())
	sess, err := a.CreateSession(context.Background(), decimal.NewFromInt(708), "ord-1")

	require.NoError(t, err)
	assert.Equal(t, "rzp_1", sess.GatewayOrderID)
	assert.Equal(t, int64(70800), sess.Amount)
	assert.Equal(t, "key_test", sess.KeyID)
}

func TestCreateSessionUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, "", srv.Client())
	_, err := a.CreateSession(context.Background(), decimal.NewFromInt(100), "ord-1")

	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestVerifyOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/verify", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rzp_1", req["razorpay_order_id"])
		assert.Equal(t, "pay_1", req["razorpay_payment_id"])
		assert.Equal(t, "sig", req["razorpay_signature"])
		assert.Equal(t, "ord-1", req["internal_order_id"])

		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, "", srv.Client())
	err := a.Verify(context.Background(), SignatureTriple{
		GatewayOrderID:   "rzp_1",
		GatewayPaymentID: "pay_1",
		Signature:        "sig",
	}, "ord-1")

	assert.NoError(t, err)
}

func TestVerifyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL, "", srv.Client())
	err := a.Verify(context.Background(), SignatureTriple{}, "ord-1")

	assert.ErrorIs(t, err, ErrVerificationRejected)
}
