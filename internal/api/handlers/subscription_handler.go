package handlers

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/engine/plans"
	"lawdesk/internal/engine/subscriptions"
	"lawdesk/internal/engine/usage"
	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/audit"
	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/payments"
)

type SubscriptionHandler struct {
	registry *subscriptions.Registry
	meter    usage.Meter
	audit    *audit.Logger
}

func NewSubscriptionHandler(registry *subscriptions.Registry, meter usage.Meter, auditLogger *audit.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{registry: registry, meter: meter, audit: auditLogger}
}

type SubscriptionResponse struct {
	Subscription  *subscriptions.Subscription `json:"subscription"`
	EffectivePlan plans.Plan                  `json:"effective_plan"`
	TrialDaysLeft int                         `json:"trial_days_left"`
}

func newSubscriptionResponse(sub *subscriptions.Subscription) SubscriptionResponse {
	plan, _ := plans.Get(sub.EffectivePlan())
	return SubscriptionResponse{
		Subscription:  sub,
		EffectivePlan: plan,
		TrialDaysLeft: sub.TrialDaysLeft(time.Now().Unix()),
	}
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}
	errors.WriteJSON(w, http.StatusOK, newSubscriptionResponse(t.Subscription))
}

type ChangePlanRequest struct {
	Plan string `json:"plan"`
}

func (h *SubscriptionHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}
	var req ChangePlanRequest
	if !decode(w, r, &req) {
		return
	}

	previous := t.Subscription.Plan
	sub, err := h.registry.ChangePlan(r.Context(), t.OrgCode, req.Plan)
	if err != nil {
		h.writeError(w, t.OrgCode, err)
		return
	}

	direction := "upgrade"
	if plans.Rank(sub.Plan) < plans.Rank(previous) {
		direction = "downgrade"
	}
	h.audit.Log(r.Context(), audit.ActionPlanChanged, "subscription", t.OrgCode, map[string]interface{}{
		"from":      previous,
		"to":        sub.Plan,
		"direction": direction,
	})
	errors.WriteJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}

type ActivateRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// Activate turns the current plan into a paid subscription.
func (h *SubscriptionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}
	var req ActivateRequest
	if !decode(w, r, &req) {
		return
	}
	email, err := identity.CurrentUserEmail(r.Context())
	if err != nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No session", nil)
		return
	}

	sub, err := h.registry.Activate(r.Context(), t.OrgCode, email, req.PaymentMethodID)
	if err != nil {
		h.writeError(w, t.OrgCode, err)
		return
	}

	h.audit.Log(r.Context(), audit.ActionActivated, "subscription", t.OrgCode, map[string]interface{}{
		"plan": sub.Plan,
	})
	errors.WriteJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}

	sub, err := h.registry.Cancel(r.Context(), t.OrgCode)
	if err != nil {
		h.writeError(w, t.OrgCode, err)
		return
	}

	h.audit.Log(r.Context(), audit.ActionCancelled, "subscription", t.OrgCode, map[string]interface{}{
		"plan": sub.Plan,
	})
	errors.WriteJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}

type UsageLine struct {
	Feature string `json:"feature"`
	Used    int    `json:"used"`
	// Limit is -1 for unlimited and 0 when the plan lacks the feature.
	Limit int `json:"limit"`
}

// Usage reports this month's counters next to the plan's caps.
func (h *SubscriptionHandler) Usage(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}

	summary, err := h.meter.Summary(r.Context(), t.OrgCode)
	if err != nil {
		log.Error().Err(err).Str("org_code", t.OrgCode).Msg("failed to read usage summary")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to read usage", nil)
		return
	}

	plan := t.Plan()
	for _, f := range []string{plans.FeatureCaseComparison, plans.FeatureAIInsights, plans.FeatureDocumentAnalysis, plans.FeatureLegalResearch} {
		if _, ok := summary[f]; !ok {
			summary[f] = 0
		}
	}

	lines := make([]UsageLine, 0, len(summary))
	for _, f := range usage.Features(summary) {
		line := UsageLine{Feature: f, Used: summary[f]}
		if plans.HasFeature(plan, f) {
			line.Limit = plans.Unlimited
			if limit, ok := plans.GetLimit(plan, f); ok {
				line.Limit = limit
			}
		}
		lines = append(lines, line)
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"plan":   plan,
		"period": usage.Period(time.Now()),
		"usage":  lines,
	})
}

func (h *SubscriptionHandler) writeError(w http.ResponseWriter, orgCode string, err error) {
	switch {
	case stderrors.Is(err, subscriptions.ErrUnknownPlan):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown plan", map[string]interface{}{"plans": plans.Names()})
	case stderrors.Is(err, payments.ErrNotConfigured):
		errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeUpstreamFailed, "Payments are not configured", nil)
	case stderrors.Is(err, subscriptions.ErrPaymentFailed):
		log.Warn().Err(err).Str("org_code", orgCode).Msg("payment provider rejected subscription change")
		errors.WriteError(w, http.StatusPaymentRequired, errors.ErrCodeUpstreamFailed, "Payment could not be completed", nil)
	default:
		log.Error().Err(err).Str("org_code", orgCode).Msg("subscription update failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Subscription update failed", nil)
	}
}
