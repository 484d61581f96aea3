package services

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/festpass/registration-backend/internal/models"
)

func TestComputeSignature_KnownVector(t *testing.T) {
	// echo -n "order_1|pay_1" | openssl dgst -sha256 -hmac secret
	sig := ComputeSignature([]byte("secret"), "order_1", "pay_1")
	assert.Equal(t, "52115a0d3400de9e86aade1f1b6eba9e8974604f4e267a9e9a16633a4c8dd2cb", sig)
}

func TestHMACVerifier(t *testing.T) {
	v, err := NewHMACVerifier("secret")
	require.NoError(t, err)

	sig := ComputeSignature([]byte("secret"), "order_1", "pay_1")
	assert.True(t, v.Verify("order_1", "pay_1", sig))

	t.Run("every single character mutation fails", func(t *testing.T) {
		for i := 0; i < len(sig); i++ {
			mutated := []byte(sig)
			if mutated[i] == 'a' {
				mutated[i] = 'b'
			} else {
				mutated[i] = 'a'
			}
			assert.False(t, v.Verify("order_1", "pay_1", string(mutated)), "mutation at %d", i)
		}
	})

	t.Run("swapped ids fail", func(t *testing.T) {
		assert.False(t, v.Verify("pay_1", "order_1", sig))
	})

	t.Run("uppercase hex fails", func(t *testing.T) {
		assert.False(t, v.Verify("order_1", "pay_1", strings.ToUpper(sig)))
	})

	t.Run("empty signature fails", func(t *testing.T) {
		assert.False(t, v.Verify("order_1", "pay_1", ""))
	})
}

func TestNewHMACVerifier_EmptySecret(t *testing.T) {
	_, err := NewHMACVerifier("")
	assert.Error(t, err)
}

func TestBypassVerifier(t *testing.T) {
	v := NewBypassVerifier(quietLogger())
	assert.True(t, v.Verify("order", "pay", "anything"))
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		amount  float64
		want    int64
		wantErr bool
	}{
		{150.00, 15000, false},
		{0.1 + 0.2, 30, false},
		{19.99, 1999, false},
		{1, 100, false},
		{0, 0, true},
		{-5, 0, true},
		{0.001, 0, true},
		{10_000_000, 1_000_000_000, false},
		{10_000_000.01, 0, true},
		{1e17, 0, true},
		{math.MaxFloat64, 0, true},
	}
	for _, tt := range tests {
		got, err := ToMinorUnits(tt.amount)
		if tt.amount > models.MaxOrderAmount {
			assert.ErrorContains(t, err, "must not exceed")
		}
		if tt.wantErr {
			assert.Error(t, err, "amount %v", tt.amount)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "amount %v", tt.amount)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	c, err := NormalizeCurrency("", "INR")
	require.NoError(t, err)
	assert.Equal(t, "INR", c)

	c, err = NormalizeCurrency(" usd ", "INR")
	require.NoError(t, err)
	assert.Equal(t, "USD", c)

	_, err = NormalizeCurrency("RUPEES", "INR")
	assert.Error(t, err)

	_, err = NormalizeCurrency("1NR", "INR")
	assert.Error(t, err)
}

func TestNewReceipt(t *testing.T) {
	a := NewReceipt()
	b := NewReceipt()
	assert.True(t, strings.HasPrefix(a, "rcpt_"))
	assert.LessOrEqual(t, len(a), 40)
	assert.NotEqual(t, a, b)
}

func TestNewPaymentGateway_Selection(t *testing.T) {
	gw, err := NewPaymentGateway(config.PaymentConfig{TestMode: true}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, GatewayModeTest, gw.Mode())
	assert.IsType(t, &BypassVerifier{}, gw.Verifier())

	_, err = NewPaymentGateway(config.PaymentConfig{KeyID: "rzp_live"}, quietLogger())
	assert.Error(t, err, "a missing secret must not silently select test mode")

	gw, err = NewPaymentGateway(config.PaymentConfig{KeyID: "rzp_live", KeySecret: "s", APIURL: "http://localhost"}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, GatewayModeLive, gw.Mode())
	assert.IsType(t, &HMACVerifier{}, gw.Verifier())
}

func TestTestGateway_CreateOrder(t *testing.T) {
	gw := NewTestGateway("", quietLogger())

	order, err := gw.CreateOrder(context.Background(), 15000, "INR", "rcpt_1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(order.ID, TestOrderPrefix))
	assert.Equal(t, int64(15000), order.Amount)
	assert.Equal(t, "rzp_test_mode", gw.KeyID())
}

func TestRazorpayGateway_CreateOrder(t *testing.T) {
	var gotBody razorpayOrderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_live_key", user)
		assert.Equal(t, "live_secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_LIVE123","amount":15000,"currency":"INR","receipt":"rcpt_1","status":"created"}`))
	}))
	defer server.Close()

	gw, err := NewRazorpayGateway(config.PaymentConfig{KeyID: "rzp_live_key", KeySecret: "live_secret", APIURL: server.URL}, quietLogger())
	require.NoError(t, err)

	order, err := gw.CreateOrder(context.Background(), 15000, "INR", "rcpt_1")
	require.NoError(t, err)

	assert.Equal(t, "order_LIVE123", order.ID)
	assert.Equal(t, int64(15000), order.Amount)
	assert.Equal(t, int64(15000), gotBody.Amount)
	assert.Equal(t, "rcpt_1", gotBody.Receipt)
	assert.False(t, strings.HasPrefix(order.ID, TestOrderPrefix))
}

func TestRazorpayGateway_CreateOrderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
	}))
	defer server.Close()

	gw, err := NewRazorpayGateway(config.PaymentConfig{KeyID: "k", KeySecret: "s", APIURL: server.URL}, quietLogger())
	require.NoError(t, err)

	_, err = gw.CreateOrder(context.Background(), 100, "INR", "rcpt_2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
