package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/engine/plans"
	"lawdesk/internal/platform/payments"
)

var (
	ErrUnknownPlan   = errors.New("unknown plan")
	ErrPaymentFailed = errors.New("payment not completed")
)

// Registry is the source of truth for which plan an organization is on.
type Registry struct {
	repo     *Repository
	payments payments.Provider
	now      func() time.Time
}

func NewRegistry(repo *Repository, provider payments.Provider, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	if provider == nil {
		provider = payments.Disabled{}
	}
	return &Registry{repo: repo, payments: provider, now: now}
}

// Get returns the organization's subscription. An organization without a
// record is on basic/active and the result is flagged Implicit.
func (r *Registry) Get(ctx context.Context, orgCode string) (*Subscription, error) {
	sub, err := r.repo.Get(ctx, orgCode)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Subscription{
			OrgCode:  orgCode,
			Plan:     plans.Basic,
			Status:   StatusActive,
			Implicit: true,
		}, nil
	}
	return sub, nil
}

// EffectivePlan returns the plan whose features apply to orgCode now.
func (r *Registry) EffectivePlan(ctx context.Context, orgCode string) (string, error) {
	sub, err := r.Get(ctx, orgCode)
	if err != nil {
		return plans.Basic, err
	}
	return sub.EffectivePlan(), nil
}

func (r *Registry) newTrial(orgCode, plan string, days int) (*Subscription, error) {
	if !plans.Valid(plan) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	now := r.now().Unix()
	end := now + int64(days)*86400
	return &Subscription{
		OrgCode:      orgCode,
		Plan:         plan,
		Status:       StatusTrial,
		StartDate:    now,
		TrialEndDate: &end,
		UpdatedAt:    now,
	}, nil
}

// StartTrial creates a trial subscription for an organization that has none.
func (r *Registry) StartTrial(ctx context.Context, orgCode, plan string, days int) (*Subscription, error) {
	sub, err := r.newTrial(orgCode, plan, days)
	if err != nil {
		return nil, err
	}
	if err := r.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}
	return sub, nil
}

// StartTrialTx is StartTrial inside the signup transaction.
func (r *Registry) StartTrialTx(ctx context.Context, tx *sql.Tx, orgCode, plan string, days int) (*Subscription, error) {
	sub, err := r.newTrial(orgCode, plan, days)
	if err != nil {
		return nil, err
	}
	if err := r.repo.CreateTx(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}
	return sub, nil
}

// save creates the record when sub was the implicit default.
func (r *Registry) save(ctx context.Context, sub *Subscription) error {
	sub.UpdatedAt = r.now().Unix()
	if sub.Implicit {
		sub.Implicit = false
		if sub.StartDate == 0 {
			sub.StartDate = sub.UpdatedAt
		}
		return r.repo.Create(ctx, sub)
	}
	return r.repo.Update(ctx, sub)
}

// ChangePlan switches plan immediately. There is no proration; the status
// is kept so a trial stays a trial. An expired or cancelled subscription
// stays lapsed on a paid plan until Activate succeeds; moving it to basic
// makes it active again.
func (r *Registry) ChangePlan(ctx context.Context, orgCode, plan string) (*Subscription, error) {
	if !plans.Valid(plan) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	sub, err := r.Get(ctx, orgCode)
	if err != nil {
		return nil, err
	}

	previous := sub.Plan
	sub.Plan = plan
	if sub.Lapsed() && plan == plans.Basic {
		sub.Status = StatusActive
	}
	if err := r.save(ctx, sub); err != nil {
		return nil, fmt.Errorf("change plan: %w", err)
	}

	log.Info().
		Str("org_code", orgCode).
		Str("from", previous).
		Str("to", plan).
		Msg("subscription plan changed")
	return sub, nil
}

// Activate converts the organization to a paid subscription on its current
// plan through the payment provider. Only the provider's status and plan are
// read back.
func (r *Registry) Activate(ctx context.Context, orgCode, email, paymentMethodID string) (*Subscription, error) {
	sub, err := r.Get(ctx, orgCode)
	if err != nil {
		return nil, err
	}

	if sub.StripeCustomerID == "" {
		customerID, err := r.payments.CreateCustomer(ctx, email, orgCode)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
		}
		sub.StripeCustomerID = customerID
	}

	plan := sub.Plan
	if !plans.Valid(plan) {
		plan = plans.Basic
	}
	rec, err := r.payments.CreateSubscription(ctx, sub.StripeCustomerID, plan, paymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	switch payments.NormalizeStatus(rec.Status) {
	case "active", "trialing":
	default:
		return nil, fmt.Errorf("%w: provider status %s", ErrPaymentFailed, rec.Status)
	}

	sub.StripeSubscriptionID = rec.ID
	if plans.Valid(rec.Plan) {
		sub.Plan = rec.Plan
	}
	sub.Status = StatusActive
	sub.TrialEndDate = nil
	if err := r.save(ctx, sub); err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}

	log.Info().Str("org_code", orgCode).Str("plan", sub.Plan).Msg("subscription activated")
	return sub, nil
}

// Cancel ends the subscription. The organization falls back to basic.
func (r *Registry) Cancel(ctx context.Context, orgCode string) (*Subscription, error) {
	sub, err := r.Get(ctx, orgCode)
	if err != nil {
		return nil, err
	}

	if sub.StripeSubscriptionID != "" {
		if err := r.payments.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
		}
	}

	sub.Status = StatusCancelled
	if err := r.save(ctx, sub); err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	log.Info().Str("org_code", orgCode).Msg("subscription cancelled")
	return sub, nil
}

// ExpireTrials marks every trial whose end date has passed as expired and
// returns the affected organizations.
func (r *Registry) ExpireTrials(ctx context.Context) ([]string, error) {
	now := r.now().Unix()
	subs, err := r.repo.ListTrialsEndedBefore(ctx, now)
	if err != nil {
		return nil, err
	}

	var expired []string
	for _, sub := range subs {
		sub.Status = StatusExpired
		sub.UpdatedAt = now
		if err := r.repo.Update(ctx, sub); err != nil {
			log.Error().Err(err).Str("org_code", sub.OrgCode).Msg("failed to expire trial")
			continue
		}
		expired = append(expired, sub.OrgCode)
	}
	return expired, nil
}
