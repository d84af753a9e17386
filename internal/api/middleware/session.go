package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/metrics"
)

// SessionFault ends the session: the cookie is expired, the browser is told
// to drop cookies and storage, and the request stops with 401. There is no
// refresh attempt; the client must log in again.
func SessionFault(w http.ResponseWriter, r *http.Request, cookieName, reason string) {
	metrics.SessionFaults.Inc()
	log.Error().
		Str("path", r.URL.Path).
		Str("reason", reason).
		Msg("session fault, invalidating session")

	ClearSession(w, cookieName)
	w.Header().Set("Clear-Site-Data", `"cookies", "storage"`)
	errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeSessionInvalid, "Session is no longer valid, please sign in again", nil)
}

// ClearSession expires the session cookie.
func ClearSession(w http.ResponseWriter, cookieName string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
