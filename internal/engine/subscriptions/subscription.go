package subscriptions

import "lawdesk/internal/engine/plans"

const (
	StatusTrial     = "trial"
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

type Subscription struct {
	OrgCode              string `json:"org_code"`
	Plan                 string `json:"plan"`
	Status               string `json:"status"`
	StartDate            int64  `json:"start_date"`
	TrialEndDate         *int64 `json:"trial_end_date,omitempty"`
	StripeCustomerID     string `json:"-"`
	StripeSubscriptionID string `json:"-"`
	UpdatedAt            int64  `json:"updated_at"`
	// Implicit is set when no record exists and the default was substituted.
	Implicit bool `json:"implicit,omitempty"`
}

// Lapsed reports whether the subscription ended without a paid renewal.
func (s *Subscription) Lapsed() bool {
	return s.Status == StatusExpired || s.Status == StatusCancelled
}

// EffectivePlan is the plan whose features apply right now. Expired and
// cancelled subscriptions fall back to basic.
func (s *Subscription) EffectivePlan() string {
	if s == nil {
		return plans.Basic
	}
	switch s.Status {
	case StatusTrial, StatusActive:
		if plans.Valid(s.Plan) {
			return s.Plan
		}
	}
	return plans.Basic
}

// TrialDaysLeft returns whole days until the trial ends, 0 once it has
// ended, and -1 when the subscription is not a trial.
func (s *Subscription) TrialDaysLeft(now int64) int {
	if s == nil || s.Status != StatusTrial || s.TrialEndDate == nil {
		return -1
	}
	left := *s.TrialEndDate - now
	if left <= 0 {
		return 0
	}
	return int((left + 86399) / 86400)
}
