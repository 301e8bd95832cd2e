package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/snapstudio-backend/pkg/config"
)

func TestNewClientValidatesKeys(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{"test key in test env", config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1", Env: "test"}, false},
		{"restricted live key", config.StripeConfig{APIKey: "rk_live_123", Secret: "whsec_1", Env: "LIVE"}, false},
		{"live key in test env", config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec_1", Env: "test"}, true},
		{"missing secret", config.StripeConfig{APIKey: "sk_test_123", Env: "test"}, true},
		{"secret without whsec prefix", config.StripeConfig{APIKey: "sk_test_123", Secret: "sk_test_123", Env: "test"}, true},
		{"missing key", config.StripeConfig{Secret: "whsec_1"}, true},
		{"unknown env", config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_1", Env: "staging"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(ctx, tc.cfg, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.SigningSecret() != "whsec_1" {
				t.Fatalf("signing secret not preserved")
			}
			if client.Livemode() != (client.Environment() == "live") {
				t.Fatalf("livemode %v disagrees with env %s", client.Livemode(), client.Environment())
			}
		})
	}
}

func TestVerifyEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27","data":{"object":{}}}`)
	header := signHeader(payload, "whsec_test", time.Now())

	event, err := VerifyEvent(payload, header, "whsec_test")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("unexpected event id %q", event.ID)
	}

	if _, err := VerifyEvent(payload, signHeader(payload, "whsec_other", time.Now()), "whsec_test"); err == nil {
		t.Fatal("expected wrong secret to fail")
	}
	if _, err := VerifyEvent(payload, "", "whsec_test"); err == nil {
		t.Fatal("expected missing header to fail")
	}
}

func TestCreateCheckoutSessionRequiresIDs(t *testing.T) {
	client := &Client{}
	if _, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionInput{PriceID: "price_1"}); err == nil {
		t.Fatal("expected missing account to fail")
	}
}

func signHeader(payload []byte, secret string, now time.Time) string {
	ts := now.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
