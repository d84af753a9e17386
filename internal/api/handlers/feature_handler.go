package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/engine/gate"
	"lawdesk/internal/engine/plans"
	"lawdesk/internal/pkg/errors"
)

type FeatureHandler struct {
	gate *gate.Gate
}

func NewFeatureHandler(g *gate.Gate) *FeatureHandler {
	return &FeatureHandler{gate: g}
}

// CanUse answers whether the caller's organization may use a feature now.
// It never records usage.
func (h *FeatureHandler) CanUse(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}

	feature := param(r, "feature")
	d, err := h.gate.CanUse(r.Context(), t.OrgCode, feature)
	if err != nil {
		log.Error().Err(err).Str("org_code", t.OrgCode).Str("feature", feature).Msg("feature check failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Feature check failed", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"feature": feature,
		"allowed": d.Allowed,
		"reason":  d.Reason,
		"plan":    d.Plan,
		"used":    d.Used,
		"limit":   d.Limit,
	})
}

// Plans lists the catalog for the pricing page.
func (h *FeatureHandler) Plans(w http.ResponseWriter, r *http.Request) {
	out := make([]plans.Plan, 0, 3)
	for _, name := range plans.Names() {
		p, _ := plans.Get(name)
		out = append(out, p)
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"plans": out})
}
