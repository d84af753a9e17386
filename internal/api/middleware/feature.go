package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/engine/gate"
	"lawdesk/internal/pkg/errors"
)

// RequireFeature stops the request with 403 when the organization's plan
// lacks feature, or 429 when its monthly cap is used up. It does not record
// usage.
func RequireFeature(g *gate.Gate, feature string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tenant, ok := Tenant(r.Context())
			if !ok {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "No organization context", nil)
				return
			}

			d, err := g.CanUse(r.Context(), tenant.OrgCode, feature)
			if err != nil {
				log.Error().Err(err).Str("feature", feature).Msg("feature check failed")
				errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Feature check failed", nil)
				return
			}
			if !d.Allowed {
				WriteDenied(w, feature, d)
				return
			}

			next(w, r)
		}
	}
}

// WriteDenied renders a negative gate decision as an upgrade prompt.
func WriteDenied(w http.ResponseWriter, feature string, d gate.Decision) {
	details := map[string]interface{}{
		"feature": feature,
		"plan":    d.Plan,
		"reason":  d.Reason,
	}
	if d.Reason == gate.ReasonNotInPlan {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodePlanRequired, "This feature is not available in your plan", details)
		return
	}
	errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeQuotaExceeded, "Monthly limit reached for this feature", details)
}
