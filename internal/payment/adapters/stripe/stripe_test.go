package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/credits/internal/payment/domain"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","object":"event","type":"payment_intent.succeeded","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	reqHeader := http.Header{}
	reqHeader.Set(signatureHeader, buildStripeSignatureHeader(secret, payload, timestamp))

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set(signatureHeader, buildStripeSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	old := time.Now().Add(-time.Hour).Unix()
	reqHeader.Set(signatureHeader, buildStripeSignatureHeader(secret, payload, old))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected stale timestamp to be rejected, got %v", err)
	}

	reqHeader.Del(signatureHeader)
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing header to be rejected, got %v", err)
	}
}

func TestParsePaymentEvent(t *testing.T) {
	tests := []struct {
		name        string
		event       any
		wantType    string
		amount      int64
		customerRef string
		failure     string
	}{{
		name: "payment_intent.succeeded",
		event: map[string]any{
			"id":     "evt_pi",
			"object": "event",
			"type":   "payment_intent.succeeded",
			"data": map[string]any{
				"object": map[string]any{
					"id":              "pi_1",
					"object":          "payment_intent",
					"amount":          2500,
					"amount_received": 2500,
					"currency":        "brl",
					"customer":        "cus_1",
					"metadata": map[string]any{
						"tenant_id":  "42",
						"attempt_id": "77",
					},
				},
			},
		},
		wantType:    paymentdomain.EventTypePaymentSucceeded,
		amount:      2500,
		customerRef: "cus_1",
	}, {
		name: "payment_intent.payment_failed",
		event: map[string]any{
			"id":     "evt_fail",
			"object": "event",
			"type":   "payment_intent.payment_failed",
			"data": map[string]any{
				"object": map[string]any{
					"id":       "pi_2",
					"object":   "payment_intent",
					"amount":   1200,
					"currency": "brl",
					"customer": "cus_1",
					"last_payment_error": map[string]any{
						"code":    "card_declined",
						"message": "Your card was declined.",
					},
				},
			},
		},
		wantType:    paymentdomain.EventTypePaymentFailed,
		amount:      1200,
		customerRef: "cus_1",
		failure:     "Your card was declined.",
	}}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}
			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if event.EventType != tt.wantType {
				t.Fatalf("expected type %s, got %s", tt.wantType, event.EventType)
			}
			if event.AmountMinorUnits != tt.amount {
				t.Fatalf("expected amount %d, got %d", tt.amount, event.AmountMinorUnits)
			}
			if event.CustomerRef != tt.customerRef {
				t.Fatalf("expected customer %s, got %s", tt.customerRef, event.CustomerRef)
			}
			if event.FailureMessage != tt.failure {
				t.Fatalf("expected failure %q, got %q", tt.failure, event.FailureMessage)
			}
			if event.Provider != paymentdomain.ProviderStripe {
				t.Fatalf("expected provider stripe, got %s", event.Provider)
			}
		})
	}
}

func TestParseKeepsMetadata(t *testing.T) {
	payload := []byte(`{"id":"evt_meta","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_9","object":"payment_intent","amount":500,"currency":"brl","metadata":{"tenant_id":"42","attempt_id":"77"}}}}`)

	event, err := (&Adapter{}).Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Metadata[paymentdomain.MetadataTenantID] != "42" {
		t.Fatalf("expected tenant metadata, got %v", event.Metadata)
	}
	if event.Metadata[paymentdomain.MetadataAttemptID] != "77" {
		t.Fatalf("expected attempt metadata, got %v", event.Metadata)
	}
}

func TestParseIgnoresOtherEvents(t *testing.T) {
	payload := []byte(`{"id":"evt_cus","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	_, err := (&Adapter{}).Parse(context.Background(), payload)
	if !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ignored event, got %v", err)
	}
}

func TestFactoryRequiresSecret(t *testing.T) {
	if _, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
