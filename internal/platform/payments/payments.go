// Package payments wraps the card-processing provider. The core only reads
// back a subscription's status and plan; retries and webhooks stay with the
// provider.
package payments

import (
	"context"
	"errors"
	"strings"
)

var ErrNotConfigured = errors.New("payments provider not configured")

// Record is what the core needs back from a provider subscription.
type Record struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Plan   string `json:"plan"`
}

type Provider interface {
	CreateCustomer(ctx context.Context, email, orgCode string) (string, error)
	CreateSubscription(ctx context.Context, customerID, plan, paymentMethodID string) (Record, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// NormalizeStatus folds provider statuses into active, trialing, past_due,
// canceled or none.
func NormalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return "none"
	case "active", "trialing":
		return s
	case "past_due", "unpaid", "incomplete":
		return "past_due"
	case "canceled", "incomplete_expired":
		return "canceled"
	default:
		return s
	}
}

// Disabled is used when no provider key is configured.
type Disabled struct{}

func (Disabled) CreateCustomer(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) CreateSubscription(context.Context, string, string, string) (Record, error) {
	return Record{}, ErrNotConfigured
}

func (Disabled) CancelSubscription(context.Context, string) error {
	return ErrNotConfigured
}
