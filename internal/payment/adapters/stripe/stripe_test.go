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

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/ownaday/daybook/internal/payment/domain"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	header := buildStripeSignatureHeader(secret, payload, timestamp)
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err == nil {
		t.Fatalf("expected invalid signature error")
	}

	reqHeader.Del("Stripe-Signature")
	if err := adapter.Verify(context.Background(), payload, reqHeader); err == nil {
		t.Fatalf("expected error for missing signature header")
	}
}

func TestParseDayCheckout(t *testing.T) {
	created := time.Now().UTC().Unix()
	event := map[string]any{
		"id":      "evt_day",
		"type":    "checkout.session.completed",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_1",
				"payment_intent": "pi_1",
				"amount_total":   2900,
				"currency":       "usd",
				"customer_email": "buyer@example.com",
				"created":        created,
				"metadata": map[string]any{
					"day":     "2031-07-04",
					"title":   "Independence Day",
					"message": "ours now",
					"style":   "classic",
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	checkout, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if checkout.Type != paymentdomain.EventTypeDayCheckout {
		t.Fatalf("expected type %s, got %s", paymentdomain.EventTypeDayCheckout, checkout.Type)
	}
	if checkout.Day != "2031-07-04" {
		t.Fatalf("expected day 2031-07-04, got %s", checkout.Day)
	}
	if checkout.Amount != 2900 {
		t.Fatalf("expected amount 2900, got %d", checkout.Amount)
	}
	if checkout.Currency != "USD" {
		t.Fatalf("expected currency USD, got %s", checkout.Currency)
	}
	if checkout.Email != "buyer@example.com" {
		t.Fatalf("expected customer email, got %s", checkout.Email)
	}
	if checkout.PaymentRef != "pi_1" {
		t.Fatalf("expected payment ref pi_1, got %s", checkout.PaymentRef)
	}
	if checkout.Content.Title != "Independence Day" {
		t.Fatalf("expected title from metadata, got %s", checkout.Content.Title)
	}
	if checkout.ListingID != nil {
		t.Fatalf("expected no listing id on a day checkout")
	}
}

func TestParseListingCheckout(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	listingID := node.Generate()
	created := time.Now().UTC().Unix()

	event := map[string]any{
		"id":      "evt_listing",
		"type":    "checkout.session.completed",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_2",
				"payment_intent": "pi_2",
				"amount_total":   15000,
				"currency":       "usd",
				"customer_email": "buyer@example.com",
				"created":        created,
				"metadata": map[string]any{
					"day":        "2031-07-04",
					"listing_id": listingID.String(),
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	checkout, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if checkout.Type != paymentdomain.EventTypeListingCheckout {
		t.Fatalf("expected type %s, got %s", paymentdomain.EventTypeListingCheckout, checkout.Type)
	}
	if checkout.ListingID == nil || *checkout.ListingID != listingID {
		t.Fatalf("expected listing id %s", listingID.String())
	}
}

func TestParseIgnoresUnknownEventTypes(t *testing.T) {
	payload := []byte(`{"id":"evt_other","type":"invoice.paid","data":{"object":{}}}`)
	adapter := &Adapter{webhookSecret: "whsec_test"}
	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestParseRejectsSessionWithoutDay(t *testing.T) {
	payload := []byte(`{"id":"evt_noday","type":"checkout.session.completed","data":{"object":{"id":"cs_3","customer_email":"buyer@example.com","metadata":{}}}}`)
	adapter := &Adapter{webhookSecret: "whsec_test"}
	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, paymentdomain.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
