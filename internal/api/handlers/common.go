package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "lawdesk/internal/api/context"
	"lawdesk/internal/api/middleware"
	"lawdesk/internal/engine/tenantstore"
	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/identity"
)

func param(r *http.Request, name string) string {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName(name)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return false
	}
	return true
}

// tenant returns the organization context or writes a 403.
func tenant(w http.ResponseWriter, r *http.Request) (*middleware.TenantContext, bool) {
	t, ok := middleware.Tenant(r.Context())
	if !ok {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "No organization context", nil)
	}
	return t, ok
}

// storeFault renders a tenant storage error from a write or a hard read. It
// reports false when err is nil.
func storeFault(w http.ResponseWriter, r *http.Request, cookieName string, err error) bool {
	switch {
	case err == nil:
		return false
	case stderrors.Is(err, identity.ErrNoSession):
		middleware.SessionFault(w, r, cookieName, "no identity for storage access")
	case stderrors.Is(err, tenantstore.ErrUnknownKind):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Unknown record kind", nil)
	case stderrors.Is(err, tenantstore.ErrOwnershipMismatch):
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Stored record does not belong to this account", nil)
	case stderrors.Is(err, tenantstore.ErrVersionConflict):
		errors.WriteError(w, http.StatusPreconditionFailed, errors.ErrCodeConflict, "Record was changed by another request", nil)
	case stderrors.Is(err, tenantstore.ErrStorageUnavailable):
		errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeInternal, "Storage is temporarily unavailable", nil)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal error", nil)
	}
	return true
}
