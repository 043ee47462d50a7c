package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

func newTestStripe(t *testing.T, handler http.HandlerFunc) *StripeProcessor {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	// the client captures the global backend when it is built
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	}))
	t.Cleanup(func() { stripe.SetBackend(stripe.APIBackend, nil) })
	return NewStripe(stripe.NewClient("sk_test_123", nil), zap.NewNop())
}

func TestStripeChargeSendsIdempotencyKey(t *testing.T) {
	var (
		gotKey  string
		gotForm map[string]string
	)
	p := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotKey = r.Header.Get("Idempotency-Key")
		gotForm = map[string]string{
			"amount":              r.PostForm.Get("amount"),
			"currency":            r.PostForm.Get("currency"),
			"customer":            r.PostForm.Get("customer"),
			"payment_method":      r.PostForm.Get("payment_method"),
			"off_session":         r.PostForm.Get("off_session"),
			"confirm":             r.PostForm.Get("confirm"),
			"metadata[tenant_id]": r.PostForm.Get("metadata[tenant_id]"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded"}`))
	})

	res, err := p.Charge(context.Background(), ChargeRequest{
		CustomerRef:      "cus_1",
		PaymentMethodRef: "pm_1",
		AmountMinorUnits: 20000,
		Currency:         "BRL",
		IdempotencyKey:   "recharge-abc",
		Metadata:         map[string]string{"tenant_id": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.ChargeID)
	assert.Equal(t, "succeeded", res.Status)
	assert.Equal(t, "recharge-abc", gotKey)
	assert.Equal(t, map[string]string{
		"amount":              "20000",
		"currency":            "brl",
		"customer":            "cus_1",
		"payment_method":      "pm_1",
		"off_session":         "true",
		"confirm":             "true",
		"metadata[tenant_id]": "42",
	}, gotForm)
}

func TestStripeChargeMapsDecline(t *testing.T) {
	p := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	_, err := p.Charge(context.Background(), ChargeRequest{
		CustomerRef:      "cus_1",
		PaymentMethodRef: "pm_1",
		AmountMinorUnits: 500,
		Currency:         "brl",
	})
	require.Error(t, err)

	var procErr *Error
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, "card_declined", procErr.Code)
}

func TestStripeDescribePaymentMethod(t *testing.T) {
	p := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_methods/pm_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pm_1","object":"payment_method","card":{"brand":"visa","last4":"4242"}}`))
	})

	pm, err := p.DescribePaymentMethod(context.Background(), "pm_1")
	require.NoError(t, err)
	assert.Equal(t, "visa", pm.Brand)
	assert.Equal(t, "4242", pm.Last4)
}

func TestUnconfiguredProcessor(t *testing.T) {
	var p Processor = Unconfigured{}
	_, err := p.Charge(context.Background(), ChargeRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
