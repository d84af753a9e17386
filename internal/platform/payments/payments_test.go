package payments

import (
	"context"
	"errors"
	"testing"

	"lawdesk/internal/platform/config"
)

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]string{
		"":                   "none",
		"active":             "active",
		"trialing":           "trialing",
		"unpaid":             "past_due",
		"incomplete":         "past_due",
		"incomplete_expired": "canceled",
		" canceled ":         "canceled",
		"paused":             "paused",
	}
	for in, want := range tests {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewProvider_WithoutKey(t *testing.T) {
	p := NewProvider(config.PaymentsConfig{})
	if _, err := p.CreateCustomer(context.Background(), "a@x.com", "ORG1"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStripeProvider_UnknownPlan(t *testing.T) {
	p := NewStripeProvider(config.PaymentsConfig{StripeKey: "sk_test_x", PriceIDs: map[string]string{"professional": "price_1"}})
	if _, err := p.CreateSubscription(context.Background(), "cus_1", "enterprise", ""); err == nil {
		t.Error("expected error for plan without a price id")
	}
}
