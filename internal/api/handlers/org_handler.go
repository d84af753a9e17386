package handlers

import (
	"net/http"

	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/identity"
)

type OrgHandler struct{}

func NewOrgHandler() *OrgHandler {
	return &OrgHandler{}
}

// GetCurrent describes the caller and their organization.
func (h *OrgHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}
	id, _ := identity.FromContext(r.Context())

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"organization": map[string]string{
			"code": t.OrgCode,
			"name": t.OrgName,
		},
		"user": map[string]string{
			"id":    id.UserID,
			"email": id.Email,
			"role":  id.Role,
		},
		"plan":   t.Plan(),
		"status": t.Subscription.Status,
	})
}
