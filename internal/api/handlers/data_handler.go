package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"lawdesk/internal/api/middleware"
	"lawdesk/internal/engine/tenantstore"
	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/identity"
)

// maxRecordBytes bounds a PUT body.
const maxRecordBytes = 8 << 20

type DataHandler struct {
	store      *tenantstore.Store
	cookieName string
}

func NewDataHandler(store *tenantstore.Store, cookieName string) *DataHandler {
	return &DataHandler{store: store, cookieName: cookieName}
}

type DataResponse struct {
	Kind         string          `json:"kind"`
	Data         json.RawMessage `json:"data"`
	Version      int64           `json:"version"`
	LastModified string          `json:"last_modified,omitempty"`
	// Degraded is set when storage failed and the default was served.
	Degraded bool `json:"degraded,omitempty"`
	// Withheld is set when the stored record belonged to someone else.
	Withheld bool `json:"withheld,omitempty"`
}

// Get returns the caller's record of a kind. Storage failures and foreign
// records both answer with the kind's default value.
func (h *DataHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind := param(r, "kind")
	if !tenantstore.IsKnownKind(kind) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Unknown record kind", nil)
		return
	}

	rec, err := h.store.LoadRaw(r.Context(), kind, tenantstore.DefaultValue(kind))
	resp := DataResponse{Kind: kind, Data: rec.Data, Version: rec.Version, LastModified: rec.LastModified}
	switch {
	case err == nil:
	case stderrors.Is(err, tenantstore.ErrStorageUnavailable):
		resp.Degraded = true
	case stderrors.Is(err, tenantstore.ErrOwnershipMismatch):
		resp.Withheld = true
	default:
		storeFault(w, r, h.cookieName, err)
		return
	}

	w.Header().Set("ETag", strconv.FormatInt(resp.Version, 10))
	errors.WriteJSON(w, http.StatusOK, resp)
}

// Put replaces the caller's record. An If-Match header holding the version
// last read turns the write into a compare-and-swap.
func (h *DataHandler) Put(w http.ResponseWriter, r *http.Request) {
	kind := param(r, "kind")
	if !tenantstore.IsKnownKind(kind) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Unknown record kind", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRecordBytes+1))
	if err != nil || len(body) > maxRecordBytes {
		errors.WriteError(w, http.StatusRequestEntityTooLarge, errors.ErrCodeInvalidInput, "Record too large", nil)
		return
	}
	if !json.Valid(body) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Body must be JSON", nil)
		return
	}

	expected := tenantstore.AnyVersion
	if v := strings.Trim(r.Header.Get("If-Match"), `" `); v != "" {
		expected, err = strconv.ParseInt(v, 10, 64)
		if err != nil || expected < 0 {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "If-Match must be a record version", nil)
			return
		}
	}

	version, err := h.store.SaveIfVersion(r.Context(), kind, json.RawMessage(body), expected)
	if storeFault(w, r, h.cookieName, err) {
		return
	}

	w.Header().Set("ETag", strconv.FormatInt(version, 10))
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"kind":    kind,
		"version": version,
	})
}

// Kinds lists the record kinds and the active path scheme.
func (h *DataHandler) Kinds(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.CurrentUserEmail(r.Context()); err != nil {
		middleware.SessionFault(w, r, h.cookieName, "no identity for storage access")
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"kinds":       tenantstore.KnownKinds,
		"path_scheme": string(h.store.Scheme()),
	})
}
