package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "lawdesk/internal/api/context"
	"lawdesk/internal/api/handlers"
	"lawdesk/internal/api/middleware"
	"lawdesk/internal/engine/gate"
	"lawdesk/internal/engine/plans"
	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/identity"
)

type Dependencies struct {
	AuthHandler         *handlers.AuthHandler
	OrgHandler          *handlers.OrgHandler
	DataHandler         *handlers.DataHandler
	DocumentHandler     *handlers.DocumentHandler
	SubscriptionHandler *handlers.SubscriptionHandler
	FeatureHandler      *handlers.FeatureHandler
	ComparisonHandler   *handlers.ComparisonHandler
	AuditHandler        *handlers.AuditHandler
	HealthHandler       *handlers.HealthHandler
	MetricsHandler      *handlers.MetricsHandler
	AuthMiddleware      *middleware.AuthMiddleware
	TenantMiddleware    *middleware.TenantMiddleware
	RateLimiter         *middleware.RateLimiter
	Gate                *gate.Gate
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	authMid := deps.AuthMiddleware.Handle
	tenantMid := deps.TenantMiddleware.Handle
	read := deps.RateLimiter.Limit(middleware.LimitAPIRead)
	write := deps.RateLimiter.Limit(middleware.LimitAPIWrite)
	ai := deps.RateLimiter.Limit(middleware.LimitAI)
	owners := requireRole("admin", "owner")

	// route registers pattern with request logging and metrics.
	route := func(method, pattern string, handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) {
		middlewares = append([]func(http.HandlerFunc) http.HandlerFunc{middleware.Observe(pattern)}, middlewares...)
		router.Handle(method, pattern, chain(handler, middlewares...))
	}

	// Operational
	route("GET", "/health", deps.HealthHandler.Check)
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Authentication routes
	route("POST", "/api/v1/auth/signup", deps.AuthHandler.Signup, write)
	route("POST", "/api/v1/auth/login", deps.AuthHandler.Login, write)
	route("POST", "/api/v1/auth/refresh", deps.AuthHandler.Refresh, write)
	route("POST", "/api/v1/auth/logout", deps.AuthHandler.Logout)

	// Plan catalog
	route("GET", "/api/v1/plans", deps.FeatureHandler.Plans, read)

	// Organization
	route("GET", "/api/v1/organization",
		deps.OrgHandler.GetCurrent, authMid, tenantMid, read)

	// Tenant records
	route("GET", "/api/v1/data",
		deps.DataHandler.Kinds, authMid, read)
	route("GET", "/api/v1/data/:kind",
		deps.DataHandler.Get, authMid, tenantMid, read)
	route("PUT", "/api/v1/data/:kind",
		deps.DataHandler.Put, authMid, tenantMid, write)

	// Documents
	docs := middleware.RequireFeature(deps.Gate, plans.FeatureDocumentStorage)
	route("POST", "/api/v1/documents",
		deps.DocumentHandler.Upload, authMid, tenantMid, write, docs)
	route("GET", "/api/v1/documents",
		deps.DocumentHandler.List, authMid, tenantMid, read)
	route("GET", "/api/v1/documents/:doc_id",
		deps.DocumentHandler.Get, authMid, tenantMid, read)
	route("GET", "/api/v1/documents/:doc_id/content",
		deps.DocumentHandler.Content, authMid, tenantMid, read)
	route("DELETE", "/api/v1/documents/:doc_id",
		deps.DocumentHandler.Delete, authMid, tenantMid, write)

	// Subscription
	route("GET", "/api/v1/subscription",
		deps.SubscriptionHandler.Get, authMid, tenantMid, read)
	route("POST", "/api/v1/subscription/plan",
		deps.SubscriptionHandler.ChangePlan, authMid, tenantMid, owners, write)
	route("POST", "/api/v1/subscription/activate",
		deps.SubscriptionHandler.Activate, authMid, tenantMid, owners, write)
	route("POST", "/api/v1/subscription/cancel",
		deps.SubscriptionHandler.Cancel, authMid, tenantMid, owners, write)
	route("GET", "/api/v1/subscription/usage",
		deps.SubscriptionHandler.Usage, authMid, tenantMid, read)

	// Feature gate
	route("GET", "/api/v1/features/:feature",
		deps.FeatureHandler.CanUse, authMid, tenantMid, read)

	// Case comparison
	route("POST", "/api/v1/comparisons",
		deps.ComparisonHandler.Compare, authMid, tenantMid, ai,
		middleware.RequireFeature(deps.Gate, plans.FeatureCaseComparison))
	route("GET", "/api/v1/comparisons",
		deps.ComparisonHandler.History, authMid, tenantMid, read)

	// Audit
	route("GET", "/api/v1/audit",
		deps.AuditHandler.List, authMid, tenantMid, owners, read)

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id, err := identity.FromContext(r.Context())

			allowed := false
			for _, role := range roles {
				if err == nil && id.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
