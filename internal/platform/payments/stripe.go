package payments

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"

	"lawdesk/internal/platform/config"
)

type StripeProvider struct {
	api      *client.API
	priceIDs map[string]string
}

func NewStripeProvider(cfg config.PaymentsConfig) *StripeProvider {
	api := &client.API{}
	api.Init(cfg.StripeKey, nil)
	return &StripeProvider{api: api, priceIDs: cfg.PriceIDs}
}

// NewProvider returns a Stripe provider when a key is configured.
func NewProvider(cfg config.PaymentsConfig) Provider {
	if cfg.StripeKey == "" {
		log.Warn().Msg("payments: no stripe key configured, activation disabled")
		return Disabled{}
	}
	return NewStripeProvider(cfg)
}

func (p *StripeProvider) CreateCustomer(_ context.Context, email, orgCode string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.AddMetadata("org_code", orgCode)

	cust, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return cust.ID, nil
}

func (p *StripeProvider) CreateSubscription(_ context.Context, customerID, plan, paymentMethodID string) (Record, error) {
	priceID, ok := p.priceIDs[plan]
	if !ok || priceID == "" {
		return Record{}, fmt.Errorf("no stripe price configured for plan %q", plan)
	}

	if paymentMethodID != "" {
		if _, err := p.api.PaymentMethods.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
			Customer: stripe.String(customerID),
		}); err != nil {
			return Record{}, fmt.Errorf("stripe attach payment method: %w", err)
		}
		if _, err := p.api.Customers.Update(customerID, &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(paymentMethodID),
			},
		}); err != nil {
			return Record{}, fmt.Errorf("stripe set default payment method: %w", err)
		}
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
	}
	params.AddMetadata("plan", plan)

	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return Record{}, fmt.Errorf("stripe create subscription: %w", err)
	}

	return Record{
		ID:     sub.ID,
		Status: NormalizeStatus(string(sub.Status)),
		Plan:   plan,
	}, nil
}

func (p *StripeProvider) CancelSubscription(_ context.Context, subscriptionID string) error {
	if _, err := p.api.Subscriptions.Cancel(subscriptionID, &stripe.SubscriptionCancelParams{}); err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}
