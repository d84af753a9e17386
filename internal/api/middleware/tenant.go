package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	apiContext "lawdesk/internal/api/context"
	"lawdesk/internal/engine/subscriptions"
	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/identity"
	"lawdesk/internal/platform/repositories"
)

// TenantContext is the caller's organization and the subscription in force
// for this request.
type TenantContext struct {
	OrgCode      string
	OrgName      string
	Subscription *subscriptions.Subscription
}

// Plan is the plan whose features apply to this request.
func (t *TenantContext) Plan() string {
	return t.Subscription.EffectivePlan()
}

type TenantMiddleware struct {
	orgRepo    *repositories.OrganizationRepository
	registry   *subscriptions.Registry
	cookieName string
}

func NewTenantMiddleware(orgRepo *repositories.OrganizationRepository, registry *subscriptions.Registry, cookieName string) *TenantMiddleware {
	return &TenantMiddleware{
		orgRepo:    orgRepo,
		registry:   registry,
		cookieName: cookieName,
	}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := identity.FromContext(r.Context())
		if err != nil {
			SessionFault(w, r, m.cookieName, "no identity in request")
			return
		}

		org, err := m.orgRepo.GetByCode(r.Context(), id.OrgCode)
		if err != nil {
			log.Error().Err(err).Str("org_code", id.OrgCode).Msg("failed to load organization")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load organization", nil)
			return
		}
		if org == nil {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Organization not found", nil)
			return
		}

		sub, err := m.registry.Get(r.Context(), org.Code)
		if err != nil {
			log.Error().Err(err).Str("org_code", org.Code).Msg("failed to load subscription")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load subscription", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, &TenantContext{
			OrgCode:      org.Code,
			OrgName:      org.Name,
			Subscription: sub,
		})

		next(w, r.WithContext(ctx))
	}
}

// Tenant returns the TenantContext placed by TenantMiddleware.
func Tenant(ctx context.Context) (*TenantContext, bool) {
	t, ok := ctx.Value(apiContext.Tenant).(*TenantContext)
	return t, ok && t != nil
}
