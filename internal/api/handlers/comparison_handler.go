package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/api/middleware"
	"lawdesk/internal/engine/comparison"
	"lawdesk/internal/engine/gate"
	"lawdesk/internal/engine/tenantstore"
	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/audit"
)

type ComparisonHandler struct {
	svc        *comparison.Service
	audit      *audit.Logger
	cookieName string
}

func NewComparisonHandler(svc *comparison.Service, auditLogger *audit.Logger, cookieName string) *ComparisonHandler {
	return &ComparisonHandler{svc: svc, audit: auditLogger, cookieName: cookieName}
}

// Compare runs a gated comparison of a new case against prior cases. Usage
// is counted only when the model answers.
func (h *ComparisonHandler) Compare(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}
	var req comparison.Request
	if !decode(w, r, &req) {
		return
	}

	entry, decision, err := h.svc.Compare(r.Context(), t.OrgCode, req)
	var denied *gate.DeniedError
	switch {
	case err == nil:
	case stderrors.Is(err, comparison.ErrNoNewCase):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	case stderrors.As(err, &denied):
		middleware.WriteDenied(w, denied.Feature, denied.Decision)
		return
	case stderrors.Is(err, comparison.ErrModelFailed):
		log.Warn().Err(err).Str("org_code", t.OrgCode).Msg("case comparison failed")
		errors.WriteError(w, http.StatusBadGateway, errors.ErrCodeUpstreamFailed, "Case comparison is temporarily unavailable", map[string]interface{}{
			"success": false,
		})
		return
	default:
		storeFault(w, r, h.cookieName, err)
		return
	}

	h.audit.Log(r.Context(), audit.ActionComparisonRun, "comparison", entry.ID, map[string]interface{}{
		"prior_count": entry.PriorCount,
	})
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"comparison": entry,
		"usage":      decision.Reason,
	})
}

// History lists stored comparisons, newest first.
func (h *ComparisonHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.History(r.Context())
	degraded := stderrors.Is(err, tenantstore.ErrStorageUnavailable)
	if err != nil && !degraded && !stderrors.Is(err, tenantstore.ErrOwnershipMismatch) {
		storeFault(w, r, h.cookieName, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"history":  entries,
		"degraded": degraded,
	})
}
