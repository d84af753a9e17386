package handlers

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"lawdesk/internal/engine/documents"
	"lawdesk/internal/engine/plans"
	"lawdesk/internal/engine/tenantstore"
	"lawdesk/internal/pkg/errors"
	"lawdesk/internal/platform/audit"
)

type DocumentHandler struct {
	docs       *documents.Service
	audit      *audit.Logger
	maxBytes   int64
	cookieName string
}

func NewDocumentHandler(docs *documents.Service, auditLogger *audit.Logger, maxBytes int64, cookieName string) *DocumentHandler {
	return &DocumentHandler{docs: docs, audit: auditLogger, maxBytes: maxBytes, cookieName: cookieName}
}

// Upload takes a multipart form with a "file" part and optional name, type,
// matter_id, tags (comma separated), is_privileged and description fields.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	t, ok := tenant(w, r)
	if !ok {
		return
	}

	existing, err := h.docs.List(r.Context())
	if err != nil && !stderrors.Is(err, tenantstore.ErrStorageUnavailable) {
		storeFault(w, r, h.cookieName, err)
		return
	}
	if limit, ok := plans.GetLimit(t.Plan(), plans.LimitDocuments); ok && !plans.IsUnlimited(limit) && len(existing) >= limit {
		errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeQuotaExceeded, "Document limit reached for your plan", map[string]interface{}{
			"plan":  t.Plan(),
			"limit": limit,
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid multipart form", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Missing file", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Failed to read file", nil)
		return
	}

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}
	privileged, _ := strconv.ParseBool(r.FormValue("is_privileged"))

	meta, err := h.docs.Upload(r.Context(), documents.UploadInput{
		Filename:     header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Data:         data,
		Name:         r.FormValue("name"),
		Type:         r.FormValue("type"),
		MatterID:     r.FormValue("matter_id"),
		Tags:         tags,
		IsPrivileged: privileged,
		Description:  r.FormValue("description"),
		UploadedBy:   r.FormValue("uploaded_by"),
	})
	switch {
	case err == nil:
	case stderrors.Is(err, documents.ErrTooLarge):
		errors.WriteError(w, http.StatusRequestEntityTooLarge, errors.ErrCodeInvalidInput, fmt.Sprintf("File exceeds %s", documents.HumanSize(h.maxBytes)), nil)
		return
	case stderrors.Is(err, documents.ErrEmpty), stderrors.Is(err, documents.ErrInvalidFilename):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	default:
		storeFault(w, r, h.cookieName, err)
		return
	}

	h.audit.Log(r.Context(), audit.ActionDocumentUploaded, "document", meta.ID, map[string]interface{}{
		"size_bytes": meta.SizeBytes,
		"matter_id":  meta.MatterID,
	})
	errors.WriteJSON(w, http.StatusCreated, meta)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docs.List(r.Context())
	degraded := stderrors.Is(err, tenantstore.ErrStorageUnavailable)
	if err != nil && !degraded && !stderrors.Is(err, tenantstore.ErrOwnershipMismatch) {
		storeFault(w, r, h.cookieName, err)
		return
	}

	if matter := r.URL.Query().Get("matter_id"); matter != "" {
		filtered := make([]documents.Metadata, 0, len(docs))
		for _, d := range docs {
			if d.MatterID == matter {
				filtered = append(filtered, d)
			}
		}
		docs = filtered
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     len(docs),
		"degraded":  degraded,
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	meta, found, err := h.docs.Find(r.Context(), param(r, "doc_id"))
	if storeFault(w, r, h.cookieName, err) {
		return
	}
	if !found {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Document not found", nil)
		return
	}
	errors.WriteJSON(w, http.StatusOK, meta)
}

// Content streams the stored bytes with the original filename.
func (h *DocumentHandler) Content(w http.ResponseWriter, r *http.Request) {
	meta, data, found, err := h.docs.Get(r.Context(), param(r, "doc_id"))
	if storeFault(w, r, h.cookieName, err) {
		return
	}
	if !found || data == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Document not found", nil)
		return
	}

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.OriginalFilename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := param(r, "doc_id")
	deleted, err := h.docs.Delete(r.Context(), id)
	if storeFault(w, r, h.cookieName, err) {
		return
	}
	if !deleted {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Document not found", nil)
		return
	}

	h.audit.Log(r.Context(), audit.ActionDocumentDeleted, "document", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
