package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/pkg/parser"
	"lawdesk/internal/platform/repositories"
)

type AuditHandler struct {
	repo *repositories.AuditRepository
}

func NewAuditHandler(repo *repositories.AuditRepository) *AuditHandler {
	return &AuditHandler{repo: repo}
}

type auditEntry struct {
	ID           string                 `json:"id"`
	UserHash     string                 `json:"user_hash"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	IPAddress    string                 `json:"ip_address"`
	Client       string                 `json:"client"`
	CreatedAt    int64                  `json:"created_at"`
}

// List returns the organization's most recent audit entries.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.repo.ListByOrg(r.Context(), t.OrgCode, limit)
	if err != nil {
		log.Error().Err(err).Str("org_code", t.OrgCode).Msg("failed to list audit logs")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	out := make([]auditEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, auditEntry{
			ID:           l.ID,
			UserHash:     l.UserHash,
			Action:       l.Action,
			ResourceType: l.ResourceType,
			ResourceID:   l.ResourceID,
			Metadata:     l.Metadata,
			IPAddress:    l.IPAddress,
			Client:       parser.Describe(l.UserAgent),
			CreatedAt:    l.CreatedAt,
		})
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": out})
}
