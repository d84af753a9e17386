package middleware

import (
	"context"
	"net/http"
	"strings"

	apiContext "lawdesk/internal/api/context"
	"lawdesk/internal/platform/audit"
	"lawdesk/internal/platform/auth"
	"lawdesk/internal/platform/identity"
)

type AuthMiddleware struct {
	tokenSvc   *auth.TokenService
	cookieName string
}

func NewAuthMiddleware(tokenSvc *auth.TokenService, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{tokenSvc: tokenSvc, cookieName: cookieName}
}

// token reads a bearer token, falling back to the session cookie.
func (m *AuthMiddleware) token(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

// Handle validates the session token and places the caller's identity in
// the request context. Any failure is a session fault.
func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := m.token(r)
		if !ok {
			SessionFault(w, r, m.cookieName, "missing or malformed credentials")
			return
		}

		claims, err := m.tokenSvc.ValidateToken(token)
		if err != nil {
			SessionFault(w, r, m.cookieName, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
		ctx = identity.WithIdentity(ctx, identity.Identity{
			Email:   claims.Email,
			UserID:  claims.UserID,
			OrgCode: claims.OrgCode,
			Role:    claims.Role,
		})
		ctx = audit.WithRequest(ctx, r)
		next(w, r.WithContext(ctx))
	}
}
